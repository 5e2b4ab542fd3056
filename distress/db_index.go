package distress

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"sarthi/models"
)

// DBIndex scores every exemplar of a namespace stored in the service database.
// The exemplar lists are small (tens of phrases), so a linear scan is enough.
type DBIndex struct {
	db *gorm.DB
}

func NewDBIndex(db *gorm.DB) *DBIndex {
	return &DBIndex{db: db}
}

func (x *DBIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []models.Exemplar
	if err := x.db.
		Where("namespace = ? AND embedding IS NOT NULL AND embedding != ''", namespace).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load exemplars")
	}

	scored := make([]Match, 0, len(rows))
	for _, row := range rows {
		emb, err := ParseEmbedding(row.Embedding)
		if err != nil {
			log.WithError(err).WithField("exemplar_id", row.ID).Warn("skipping exemplar with invalid embedding")
			continue
		}
		s, ok := CosineSimilarity(vector, emb)
		if !ok {
			continue
		}
		scored = append(scored, Match{ID: row.ID, Category: row.Category, Text: row.Text, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// ParseEmbedding decodes a JSON float array, rejecting NaN and Inf values.
func ParseEmbedding(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty embedding string")
	}
	var arr []float64
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, errors.New("empty embedding array")
	}
	out := make([]float32, len(arr))
	for i, v := range arr {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("invalid embedding value")
		}
		out[i] = float32(v)
	}
	return out, nil
}

// CosineSimilarity is false for empty, mismatched or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
