// Package distress screens free text for self-harm and distress signals by
// comparing its embedding against a similarity index of red and yellow
// exemplar phrases.
package distress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"sarthi/metrics"
)

type Severity string

const (
	SeverityNone    Severity = "none"
	SeverityCaution Severity = "caution"
	SeverityCrisis  Severity = "crisis"

	// SeverityUnclassified marks text that could not be screened because the
	// classifier was unavailable and the caller chose to fail open.
	SeverityUnclassified Severity = "unclassified"
)

// IsDistress reports whether the severity should raise the distress flag.
func (s Severity) IsDistress() bool {
	return s == SeverityCaution || s == SeverityCrisis
}

const (
	CategoryRed    = "red"
	CategoryYellow = "yellow"
)

// ErrClassificationUnavailable is matched by every error Classify returns.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// UnavailableError records which provider call failed.
type UnavailableError struct {
	Op  string // "embed", "query", "wait"
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("classification unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrClassificationUnavailable
}

// Match is one reference phrase returned by the similarity index.
type Match struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Text     string  `json:"text,omitempty"`
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index answers nearest-neighbour queries against the exemplar phrases.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, namespace string) ([]Match, error)
}

// Cache remembers the nearest match for a text. Implementations must be safe
// for concurrent use; a miss is reported with ok == false.
type Cache interface {
	Get(key string) (m *Match, ok bool)
	Set(key string, m *Match)
}

type Thresholds struct {
	Red    float64
	Yellow float64
}

var DefaultThresholds = Thresholds{Red: 0.65, Yellow: 0.55}

type Options struct {
	Thresholds Thresholds
	TopK       int
	Namespace  string
	Timeout    time.Duration
	// Model is folded into cache keys so switching models never serves stale matches.
	Model string
	Cache Cache
}

type Classifier struct {
	embedder Embedder
	index    Index
	opts     Options
	group    singleflight.Group
}

func NewClassifier(embedder Embedder, index Index, opts Options) *Classifier {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Namespace == "" {
		opts.Namespace = "distress"
	}
	return &Classifier{embedder: embedder, index: index, opts: opts}
}

// Classify maps text to a severity. It never writes anywhere; a failing or
// slow provider yields an error matching ErrClassificationUnavailable.
func (c *Classifier) Classify(ctx context.Context, text string) (Severity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SeverityNone, nil
	}

	key := c.cacheKey(text)
	// The lookup is shared by every caller screening the same text, so it
	// must not inherit any single caller's cancellation.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
		defer cancel()
		return c.nearest(lookupCtx, key, text)
	})

	wait, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-wait.Done():
		res.Err = &UnavailableError{Op: "wait", Err: wait.Err()}
	}
	if res.Err != nil {
		metrics.ClassificationsTotal.WithLabelValues("unavailable").Inc()
		return SeverityNone, res.Err
	}

	sev := Decide(res.Val.(*Match), c.opts.Thresholds)
	metrics.ClassificationsTotal.WithLabelValues(string(sev)).Inc()
	return sev, nil
}

func (c *Classifier) nearest(ctx context.Context, key, text string) (*Match, error) {
	if c.opts.Cache != nil {
		if m, ok := c.opts.Cache.Get(key); ok {
			return m, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &UnavailableError{Op: "embed", Err: err}
	}
	matches, err := c.index.Query(ctx, vec, c.opts.TopK, c.opts.Namespace)
	if err != nil {
		return nil, &UnavailableError{Op: "query", Err: err}
	}
	// a provider that ignored a cancelled context still counts as unavailable
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "query", Err: err}
	}

	m := Nearest(matches)
	if c.opts.Cache != nil {
		c.opts.Cache.Set(key, m)
	}
	log.WithFields(log.Fields{"matches": len(matches), "namespace": c.opts.Namespace}).Debug("distress index queried")
	return m, nil
}

func (c *Classifier) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.opts.Model + "\x00" + c.opts.Namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Nearest returns the highest scoring match, or nil for an empty set.
func Nearest(matches []Match) *Match {
	var best *Match
	for i := range matches {
		if best == nil || matches[i].Score > best.Score {
			best = &matches[i]
		}
	}
	if best == nil {
		return nil
	}
	m := *best
	return &m
}

// Decide applies the thresholds to the nearest match only. Bounds are inclusive.
func Decide(nearest *Match, th Thresholds) Severity {
	if nearest == nil {
		return SeverityNone
	}
	switch {
	case nearest.Category == CategoryRed && nearest.Score >= th.Red:
		return SeverityCrisis
	case nearest.Category == CategoryYellow && nearest.Score >= th.Yellow:
		return SeverityCaution
	}
	return SeverityNone
}
