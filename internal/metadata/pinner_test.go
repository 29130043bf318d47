package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdder struct {
	cid   string
	err   error
	body  []byte
	opts  int
	block chan struct{}
}

func (s *stubAdder) Add(r io.Reader, options ...shell.AddOpts) (string, error) {
	if s.block != nil {
		<-s.block
	}
	s.body, _ = io.ReadAll(r)
	s.opts = len(options)
	return s.cid, s.err
}

func TestPin_ReturnsIPFSURI(t *testing.T) {
	adder := &stubAdder{cid: "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}
	p := NewPinner(adder, nil)

	uri, err := p.Pin(context.Background(), Document{
		Name:       "Genesis #1",
		Image:      "ipfs://QmImage",
		Attributes: []Attribute{{TraitType: "rarity", Value: "rare"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", uri)
	assert.Equal(t, 1, adder.opts, "pin option is passed")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(adder.body, &doc))
	assert.Equal(t, "Genesis #1", doc["name"])
	assert.NotContains(t, doc, "description")

	cid, ok := CID(uri)
	assert.True(t, ok)
	assert.Equal(t, adder.cid, cid)
}

func TestPin_Validation(t *testing.T) {
	p := NewPinner(&stubAdder{cid: "Qm"}, nil)

	_, err := p.Pin(context.Background(), Document{})
	assert.Error(t, err)

	_, err = p.Pin(context.Background(), Document{Name: "x", Attributes: []Attribute{{Value: 1}}})
	assert.Error(t, err)
}

func TestPin_NodeError(t *testing.T) {
	p := NewPinner(&stubAdder{err: errors.New("connection refused")}, nil)
	_, err := p.Pin(context.Background(), Document{Name: "x"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestPin_ContextCancelled(t *testing.T) {
	adder := &stubAdder{cid: "Qm", block: make(chan struct{})}
	defer close(adder.block)
	p := NewPinner(adder, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Pin(ctx, Document{Name: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCID(t *testing.T) {
	_, ok := CID("https://example.com/1.json")
	assert.False(t, ok)
	_, ok = CID("ipfs://")
	assert.False(t, ok)
}
