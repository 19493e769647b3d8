package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinWithJWT(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pinFilePath, r.URL.Path)
		assert.Equal(t, "Bearer secret-jwt", r.Header.Get("Authorization"))
		assert.Equal(t, int64(-1), r.ContentLength, "upload should be streamed")

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.jpg", hdr.Filename)
		assert.Equal(t, "image-bytes", string(data))
		assert.JSONEq(t, `{"cidVersion":0}`, r.FormValue("pinataOptions"))

		json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "QmHash", "PinSize": 11})
	}))
	defer ts.Close()

	p := NewPinner(ts.URL+"/", Credentials{JWT: "secret-jwt"}, ts.Client())
	ref, err := p.Pin(context.Background(), "photo.jpg", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmHash", ref)
}

func TestPinWithAPIKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("pinata_api_key"))
		assert.Equal(t, "shh", r.Header.Get("pinata_secret_api_key"))
		json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "bafyHash"})
	}))
	defer ts.Close()

	p := NewPinner(ts.URL, Credentials{APIKey: "key", APISecret: "shh"}, ts.Client())
	ref, err := p.Pin(context.Background(), "a.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafyHash", ref)
}

func TestPinNoCredentials(t *testing.T) {
	p := NewPinner("http://unused", Credentials{}, nil)
	_, err := p.Pin(context.Background(), "a.png", strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestPinServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := NewPinner(ts.URL, Credentials{JWT: "bad"}, ts.Client())
	_, err := p.Pin(context.Background(), "a.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid key")
}

func TestPinMissingHash(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	p := NewPinner(ts.URL, Credentials{JWT: "t"}, ts.Client())
	_, err := p.Pin(context.Background(), "a.png", strings.NewReader("x"))
	assert.Error(t, err)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestPinUploadReadError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "QmHash"})
	}))
	defer ts.Close()

	errDisk := errors.New("disk gone")
	p := NewPinner(ts.URL, Credentials{JWT: "t"}, ts.Client())
	_, err := p.Pin(context.Background(), "a.png", failingReader{errDisk})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "https://ipfs.io/ipfs/QmAbc", GatewayURL("ipfs://QmAbc"))
	assert.Equal(t, "https://ipfs.io/ipfs/QmAbc", GatewayURL("QmAbc"))
	assert.Equal(t, "https://ipfs.io/ipfs/bafyAbc", GatewayURL("bafyAbc"))
	assert.Equal(t, "https://example.com/a.png", GatewayURL("https://example.com/a.png"))
}

func TestFallbackURLs(t *testing.T) {
	urls := FallbackURLs("ipfs://QmAbc")
	require.Len(t, urls, len(Gateways))
	assert.Equal(t, "https://ipfs.io/ipfs/QmAbc", urls[0])
	assert.Equal(t, "https://dweb.link/ipfs/QmAbc", urls[3])
}
