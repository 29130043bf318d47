// Package metadata pins NFT metadata documents to IPFS and returns the
// ipfs:// URI that is passed to the mint call.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"nftmint/internal/logging"
)

const uriScheme = "ipfs://"

// Document follows the common ERC-721 metadata JSON layout.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	ExternalURL string      `json:"external_url,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

func (d Document) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("metadata name is required")
	}
	for i, a := range d.Attributes {
		if strings.TrimSpace(a.TraitType) == "" {
			return fmt.Errorf("attribute %d: trait_type is required", i)
		}
	}
	return nil
}

// Adder is the part of the IPFS HTTP client used for pinning.
type Adder interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
}

type Pinner struct {
	ipfs   Adder
	logger logging.Logger
}

// NewIPFSPinner talks to the IPFS HTTP API at apiURL, e.g. "localhost:5001".
func NewIPFSPinner(apiURL string, logger logging.Logger) *Pinner {
	return NewPinner(shell.NewShell(apiURL), logger)
}

func NewPinner(ipfs Adder, logger logging.Logger) *Pinner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pinner{ipfs: ipfs, logger: logger}
}

// Pin stores doc and returns its ipfs:// URI.
func (p *Pinner) Pin(ctx context.Context, doc Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		cid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		cid, err := p.ipfs.Add(bytes.NewReader(body), shell.Pin(true))
		done <- result{cid, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("pin metadata: %w", r.err)
		}
		uri := uriScheme + r.cid
		p.logger.Info("metadata pinned", "uri", uri, "name", doc.Name)
		return uri, nil
	}
}

// CID extracts the content id from an ipfs:// URI.
func CID(uri string) (string, bool) {
	if !strings.HasPrefix(uri, uriScheme) {
		return "", false
	}
	cid := strings.TrimPrefix(uri, uriScheme)
	return cid, cid != ""
}
