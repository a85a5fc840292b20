package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"image/jpeg"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/folio/internal/testutil"
)

// aManifestWithPages serves a manifest whose pages each have their own
// image service.
func (testCtx *TestContext) aManifestWithPages(name string, pages int) error {
	return testCtx.serveManifest(name, pages, 0)
}

// aManifestWithoutImagesOnPage serves a manifest whose given page has an
// empty images[].
func (testCtx *TestContext) aManifestWithoutImagesOnPage(name string, pages, broken int) error {
	return testCtx.serveManifest(name, pages, broken)
}

func (testCtx *TestContext) serveManifest(name string, pages, broken int) error {
	srv := testCtx.server()
	img, err := pageImage()
	if err != nil {
		return err
	}

	path := "/" + name + ".json"
	id := srv.URLFor(path)
	canvases := make([]testutil.CanvasFixture, pages)
	for i := range canvases {
		canvases[i] = testutil.CanvasFixture{
			ID:        fmt.Sprintf("%s/canvas/p%d", id, i+1),
			ServiceID: srv.AddImageService(fmt.Sprintf("%s-p%d", name, i+1), img),
			NoImages:  i+1 == broken,
		}
	}
	return testCtx.serve(name, path, testutil.ManifestDoc(id, canvases...))
}

// aCollectionOf serves a collection referencing previously registered
// manifests (comma separated) and any unregistered names as missing URLs.
func (testCtx *TestContext) aCollectionOf(name, members string) error {
	srv := testCtx.server()
	var ids []string
	for _, m := range strings.Split(members, ",") {
		m = strings.TrimSpace(m)
		if url, ok := testCtx.Resources[m]; ok {
			ids = append(ids, url)
			continue
		}
		ids = append(ids, srv.URLFor("/"+m+".json"))
		testCtx.Resources[m] = srv.URLFor("/" + m + ".json")
	}
	path := "/" + name + ".json"
	return testCtx.serve(name, path, testutil.CollectionDoc(srv.URLFor(path), ids...))
}

// theImageServiceFails makes every image request of a page fail.
func (testCtx *TestContext) theImageServiceFails(name string, page int) error {
	testCtx.server().Fail(fmt.Sprintf("/iiif/%s-p%d", name, page), http.StatusInternalServerError)
	return nil
}

func (testCtx *TestContext) serve(name, path string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	testCtx.Resources[name] = testCtx.server().AddJSON(path, body)
	return nil
}

// aFakeKrakenEngine installs the fake kraken and points folio at it.
func (testCtx *TestContext) aFakeKrakenEngine() error {
	path, err := testutil.InstallFakeKraken(testCtx.TempDir)
	if err != nil {
		return err
	}
	testCtx.KrakenPath = path
	testCtx.AddEnvVar("FOLIO_OCR_KRAKEN_BIN", path)
	return nil
}

// krakenShouldHaveRecognized counts fake kraken invocations.
func (testCtx *TestContext) krakenShouldHaveRecognized(n int) error {
	calls, err := testutil.ReadFakeKrakenCalls(testCtx.KrakenPath)
	if err != nil {
		return err
	}
	if len(calls) != n {
		return fmt.Errorf("expected %d recognition(s), got %d", n, len(calls))
	}
	return nil
}

// pageImage is a small JPEG shared by all image services.
func pageImage() ([]byte, error) {
	var buf bytes.Buffer
	img := testutil.CreateTestImage(64, 96, color.White)
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RegisterIIIFSteps registers fixture steps.
func (testCtx *TestContext) RegisterIIIFSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a manifest "([^"]*)" with (\d+) pages?$`, testCtx.aManifestWithPages)
	sc.Step(`^a manifest "([^"]*)" with (\d+) pages whose page (\d+) has no images$`, testCtx.aManifestWithoutImagesOnPage)
	sc.Step(`^a collection "([^"]*)" of "([^"]*)"$`, testCtx.aCollectionOf)
	sc.Step(`^the image service of "([^"]*)" page (\d+) fails$`, testCtx.theImageServiceFails)
	sc.Step(`^a fake kraken engine$`, testCtx.aFakeKrakenEngine)
	sc.Step(`^kraken should have recognized (\d+) pages?$`, testCtx.krakenShouldHaveRecognized)
}
