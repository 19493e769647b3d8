// Package ipfs talks to a Pinata-compatible pinning API and rewrites
// content references onto public gateways.
package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNoCredentials is returned by Pin when neither a JWT nor an API key
// is configured.
var ErrNoCredentials = errors.New("ipfs: pinning credentials not configured")

const (
	Scheme         = "ipfs://"
	DefaultGateway = "https://ipfs.io/ipfs/"
	pinFilePath    = "/pinning/pinFileToIPFS"
)

// Gateways are tried in order when fetching pinned content.
var Gateways = []string{
	"https://ipfs.io/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

// Credentials authenticate against the pinning API. JWT wins when both
// are set.
type Credentials struct {
	JWT       string
	APIKey    string
	APISecret string
}

// Pinner uploads files to the pinning service.
type Pinner struct {
	endpoint string
	creds    Credentials
	client   *http.Client
}

// NewPinner creates a Pinner for the API rooted at endpoint. A nil client
// uses one with a 60s timeout.
func NewPinner(endpoint string, creds Credentials, client *http.Client) *Pinner {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Pinner{
		endpoint: strings.TrimRight(endpoint, "/"),
		creds:    creds,
		client:   client,
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pin uploads the contents of r under name and returns its ipfs:// URI.
func (p *Pinner) Pin(ctx context.Context, name string, r io.Reader) (string, error) {
	if p.creds.JWT == "" && p.creds.APIKey == "" {
		return "", ErrNoCredentials
	}

	body, pw := io.Pipe()
	defer body.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, name, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+pinFilePath, body)
	if err != nil {
		return "", fmt.Errorf("ipfs: new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.creds.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+p.creds.JWT)
	} else {
		req.Header.Set("pinata_api_key", p.creds.APIKey)
		req.Header.Set("pinata_secret_api_key", p.creds.APISecret)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs: pin %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ipfs: pin %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("ipfs: decode pin response: %w", err)
	}
	if pr.IpfsHash == "" {
		return "", fmt.Errorf("ipfs: pin %s: response has no hash", name)
	}
	return Scheme + pr.IpfsHash, nil
}

// writeForm streams the upload and Pinata's metadata fields into mw.
func writeForm(mw *multipart.Writer, name string, r io.Reader) error {
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("ipfs: build form: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("ipfs: read upload: %w", err)
	}
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("ipfs: encode metadata: %w", err)
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return fmt.Errorf("ipfs: build form: %w", err)
	}
	if err := mw.WriteField("pinataOptions", `{"cidVersion":0}`); err != nil {
		return fmt.Errorf("ipfs: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("ipfs: build form: %w", err)
	}
	return nil
}

// CID strips the ipfs:// scheme from ref.
func CID(ref string) string {
	return strings.TrimPrefix(ref, Scheme)
}

// isCID reports whether ref looks like a bare CIDv0 or CIDv1 hash.
func isCID(ref string) bool {
	return strings.HasPrefix(ref, "Qm") || strings.HasPrefix(ref, "bafy")
}

// GatewayURL maps an ipfs:// URI or bare hash onto the default gateway.
// Other references, such as plain HTTP URLs, are returned unchanged.
func GatewayURL(ref string) string {
	if strings.HasPrefix(ref, Scheme) || isCID(ref) {
		return DefaultGateway + CID(ref)
	}
	return ref
}

// FallbackURLs returns ref resolved against every gateway in Gateways.
func FallbackURLs(ref string) []string {
	cid := CID(ref)
	urls := make([]string, 0, len(Gateways))
	for _, g := range Gateways {
		urls = append(urls, g+cid)
	}
	return urls
}
