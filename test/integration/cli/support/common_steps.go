package support

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substitute(command)
	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...) //nolint:gosec // G204: scenario-defined command
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	testCtx.LastExitCode = 0
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFailWithExitCode verifies the exact exit status.
func (testCtx *TestContext) theCommandShouldFailWithExitCode(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("expected exit code %d, got %d\nOutput: %s", code, testCtx.LastExitCode, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies stdout or stderr contains text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substitute(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldBeValidJSON verifies stdout is a single JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var v any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &v); err != nil {
		return fmt.Errorf("stdout is not valid JSON: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return nil
}

// theJSONOutputShouldHave compares a top-level field of the JSON on stdout.
func (testCtx *TestContext) theJSONOutputShouldHave(field, expected string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &doc); err != nil {
		return fmt.Errorf("stdout is not a JSON object: %w", err)
	}
	value, ok := doc[field]
	if !ok {
		return fmt.Errorf("JSON output has no field %q", field)
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("%s = %s, want %s", field, got, expected)
	}
	return nil
}

// readRecords decodes a JSONL file.
func (testCtx *TestContext) readRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(testCtx.resolvePath(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON line in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// theFileShouldHaveRecords counts the records of a JSONL file.
func (testCtx *TestContext) theFileShouldHaveRecords(path string, n int) error {
	records, err := testCtx.readRecords(path)
	if err != nil {
		return err
	}
	if len(records) != n {
		return fmt.Errorf("expected %d record(s) in %s, got %d", n, path, len(records))
	}
	return nil
}

// theFileShouldNotExist verifies a path is absent.
func (testCtx *TestContext) theFileShouldNotExist(path string) error {
	if _, err := os.Stat(testCtx.resolvePath(path)); !os.IsNotExist(err) {
		return fmt.Errorf("file %s exists", path)
	}
	return nil
}

// everyRecordShouldHaveField checks a field on every record. An expected
// value of "null" matches JSON null.
func (testCtx *TestContext) everyRecordShouldHaveField(path, field, expected string) error {
	records, err := testCtx.readRecords(path)
	if err != nil {
		return err
	}
	expected = testCtx.substitute(expected)
	for i, rec := range records {
		value, ok := rec[field]
		if !ok {
			return fmt.Errorf("record %d has no field %q", i, field)
		}
		got := fmt.Sprint(value)
		if value == nil {
			got = "null"
		}
		if got != expected {
			return fmt.Errorf("record %d: %s = %q, want %q", i, field, got, expected)
		}
	}
	return nil
}

// pageKeysShouldBeUnique checks that no page key is recorded twice.
func (testCtx *TestContext) pageKeysShouldBeUnique(path string) error {
	records, err := testCtx.readRecords(path)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, rec := range records {
		key := fmt.Sprint(rec["page_key"])
		if seen[key] {
			return fmt.Errorf("page key recorded twice: %s", key)
		}
		seen[key] = true
	}
	return nil
}

// RegisterCommonSteps registers command and file assertions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail with exit code (\d+)$`, testCtx.theCommandShouldFailWithExitCode)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON output should have "([^"]*)" equal to "([^"]*)"$`, testCtx.theJSONOutputShouldHave)
	sc.Step(`^the file "([^"]*)" should have (\d+) records?$`, testCtx.theFileShouldHaveRecords)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^every record in "([^"]*)" should have "([^"]*)" set to "([^"]*)"$`, testCtx.everyRecordShouldHaveField)
	sc.Step(`^the page keys in "([^"]*)" should be unique$`, testCtx.pageKeysShouldBeUnique)
}
