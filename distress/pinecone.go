package distress

import (
	"context"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeIndex queries a Pinecone index whose vectors carry "category" and
// "text" metadata, as written by the offline exemplar upload.
type PineconeIndex struct {
	client *pinecone.Client
	host   string

	mu    sync.Mutex
	conns map[string]*pinecone.IndexConnection
}

func NewPineconeIndex(ctx context.Context, apiKey, indexName string) (*PineconeIndex, error) {
	if apiKey == "" || indexName == "" {
		return nil, errors.New("PINECONE_API_KEY and PINECONE_INDEX must be set for the pinecone index")
	}
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, errors.Wrap(err, "create pinecone client")
	}
	idx, err := pc.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, errors.Wrapf(err, "describe pinecone index %s", indexName)
	}
	return &PineconeIndex{
		client: pc,
		host:   idx.Host,
		conns:  map[string]*pinecone.IndexConnection{},
	}, nil
}

func (p *PineconeIndex) conn(namespace string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[namespace]; ok {
		return c, nil
	}
	c, err := p.client.Index(pinecone.NewIndexConnParams{Host: p.host, Namespace: namespace})
	if err != nil {
		return nil, errors.Wrapf(err, "connect pinecone namespace %s", namespace)
	}
	p.conns[namespace] = c
	return c, nil
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]Match, error) {
	c, err := p.conn(namespace)
	if err != nil {
		return nil, err
	}
	res, err := c.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "pinecone query")
	}

	out := make([]Match, 0, len(res.Matches))
	for _, sv := range res.Matches {
		if sv == nil || sv.Vector == nil {
			continue
		}
		out = append(out, Match{
			ID:       sv.Vector.Id,
			Category: metadataString(sv.Vector.Metadata, "category"),
			Text:     metadataString(sv.Vector.Metadata, "text"),
			Score:    float64(sv.Score),
		})
	}
	return out, nil
}

func (p *PineconeIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for ns, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close pinecone namespace %s", ns)
		}
	}
	p.conns = map[string]*pinecone.IndexConnection{}
	return firstErr
}

func metadataString(md *structpb.Struct, key string) string {
	if md == nil {
		return ""
	}
	v, ok := md.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
