package integration

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/sense/pkg/api"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// postMedia uploads body to the photos collection and returns the media link entry.
func postMedia(t *testing.T, slug, contentType string, body io.Reader) *api.Entry {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, testEnv.BaseURL()+"/photos", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+writerKey)
	if slug != "" {
		req.Header.Set("Slug", slug)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusCreated)

	var entry api.Entry
	decodeXML(t, resp, &entry)
	return &entry
}

func TestMediaLifecycle(t *testing.T) {
	entry := postMedia(t, "sunset", "image/png", bytes.NewReader(pngHeader))

	assert.Equal(t, "sunset", entry.Title, "the slug becomes the title")
	mediaURL := entry.Link(api.RelEditMedia)
	require.True(t, strings.HasSuffix(mediaURL, ";media"), "edit-media link %q", mediaURL)
	require.NotNil(t, entry.Content)
	assert.Equal(t, mediaURL, entry.Content.Src)
	assert.Equal(t, "image/png", entry.Content.Type)

	got := getURL(t, mediaURL)
	requireStatus(t, got, http.StatusOK)
	assert.Equal(t, "image/png", got.Header.Get("Content-Type"))
	assert.Equal(t, string(pngHeader), readBody(t, got))

	put := do(t, http.MethodPut, mediaURL, writerKey, "image/jpeg", strings.NewReader("jpeg-bytes"))
	put.Body.Close()
	require.Equal(t, http.StatusNoContent, put.StatusCode)

	replaced := getURL(t, mediaURL)
	assert.Equal(t, "image/jpeg", replaced.Header.Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", readBody(t, replaced))

	del := deleteURL(t, mediaURL, writerKey)
	del.Body.Close()
	require.Equal(t, http.StatusNoContent, del.StatusCode)
	expectError(t, getURL(t, entry.Link(api.RelEdit)), http.StatusNotFound)
	expectError(t, getURL(t, mediaURL), http.StatusNotFound)
}

func TestMediaOfPlainEntry(t *testing.T) {
	resp, created := postEntry(t, writerKey, &api.Entry{Title: "No media"})
	requireStatus(t, resp, http.StatusCreated)
	t.Cleanup(func() { deleteURL(t, created.Link(api.RelEdit), writerKey).Body.Close() })

	assert.Empty(t, created.Link(api.RelEditMedia), "plain entries carry no edit-media link")
	expectError(t, getURL(t, created.Link(api.RelEdit)+";media"), http.StatusNotFound)
}

func TestMediaHeadOmitsBody(t *testing.T) {
	entry := postMedia(t, "", "image/png", strings.NewReader("abc"))
	mediaURL := entry.Link(api.RelEditMedia)
	t.Cleanup(func() { deleteURL(t, mediaURL, writerKey).Body.Close() })

	head := do(t, http.MethodHead, mediaURL, "", "", nil)
	requireStatus(t, head, http.StatusOK)
	assert.Empty(t, readBody(t, head))
}
