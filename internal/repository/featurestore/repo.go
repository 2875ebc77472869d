package featurestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/domain"
)

// Key layout in the backing store. Rows are written by the offline feature
// publisher; this repository only reads.
const (
	userKeyPrefix     = domain.KeyPrefix + "user:"
	itemKeyPrefix     = domain.KeyPrefix + "itemfeat:"
	interactKeyPrefix = domain.KeyPrefix + "interact:"

	userVectorField = "__vector"
)

// reader is the consumer interface for feature rows (ISP).
type reader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo reads user, item, and interaction feature rows. A missing row yields an
// empty map: absence is a legitimate value, not an error.
type Repo struct {
	store  reader
	logger *zap.Logger
}

// New creates a feature store repository.
func New(s reader, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

// UserFeatures returns the numeric features of one user.
func (r *Repo) UserFeatures(ctx context.Context, userID string) (map[string]float64, error) {
	fields, err := r.store.HGetAll(ctx, userKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("user features %s: %w", userID, err)
	}
	return r.parseNumerics(fields), nil
}

// ItemFeatures returns numeric features for a batch of items, keyed by item id.
// Items without a row map to an empty feature set.
func (r *Repo) ItemFeatures(ctx context.Context, itemIDs []string) (map[string]map[string]float64, error) {
	if len(itemIDs) == 0 {
		return map[string]map[string]float64{}, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = itemKeyPrefix + id
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("item features: %w", err)
	}

	out := make(map[string]map[string]float64, len(itemIDs))
	for i, row := range rows {
		out[itemIDs[i]] = r.parseNumerics(row)
	}
	return out, nil
}

// InteractionFeatures returns numeric user-item interaction features for a
// batch of items, keyed by item id.
func (r *Repo) InteractionFeatures(
	ctx context.Context, userID string, itemIDs []string,
) (map[string]map[string]float64, error) {
	if len(itemIDs) == 0 {
		return map[string]map[string]float64{}, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = interactKeyPrefix + userID + ":" + id
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("interaction features: %w", err)
	}

	out := make(map[string]map[string]float64, len(itemIDs))
	for i, row := range rows {
		out[itemIDs[i]] = r.parseNumerics(row)
	}
	return out, nil
}

// UserVector returns the user's behavioral embedding, or (nil, nil) when the
// user has none.
func (r *Repo) UserVector(ctx context.Context, userID string) ([]float32, error) {
	fields, err := r.store.HGetAll(ctx, userKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("user vector %s: %w", userID, err)
	}

	raw, ok := fields[userVectorField]
	if !ok || raw == "" {
		return nil, nil
	}

	vec, err := bytesToVector([]byte(raw))
	if err != nil {
		r.logger.Warn("Malformed user vector, treating as absent",
			zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	return vec, nil
}

// parseNumerics keeps the fields that parse as floats; everything else
// (including the binary vector field) is dropped.
func (r *Repo) parseNumerics(fields map[string]string) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		if k == userVectorField {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		}
	}
	return out
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
