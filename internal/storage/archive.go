package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"journal-sync/internal/model"
)

var ErrSnapshotNotFound = errors.New("attestation snapshot not found")

type AttestationSnapshot struct {
	ID         string                    `json:"id"`
	GroupID    int64                     `json:"group_id"`
	Period     model.Period              `json:"period"`
	ArchivedAt time.Time                 `json:"archived_at"`
	Results    []model.AttestationResult `json:"results"`
}

// SnapshotArchiver stores every distinct attestation snapshot shown to a
// lecturer as a JSON object keyed by the digest of its results.
type SnapshotArchiver struct {
	storage Storage
	prefix  string
	now     func() time.Time
}

func NewSnapshotArchiver(storage Storage, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{storage: storage, prefix: prefix, now: time.Now}
}

func (a *SnapshotArchiver) Key(groupID int64, period model.Period, id string) string {
	return path.Join(a.prefix, "attestation", fmt.Sprintf("group-%d", groupID), string(period), id+".json")
}

// Archive uploads the snapshot unless an identical one is already stored and
// returns its id.
func (a *SnapshotArchiver) Archive(ctx context.Context, groupID int64, period model.Period, results []model.AttestationResult) (string, error) {
	digest, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attestation results: %w", err)
	}
	sum := sha256.Sum256(digest)
	id := hex.EncodeToString(sum[:12])
	key := a.Key(groupID, period, id)

	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check attestation snapshot: %w", err)
	}
	if exists {
		return id, nil
	}

	data, err := json.Marshal(AttestationSnapshot{
		ID:         id,
		GroupID:    groupID,
		Period:     period,
		ArchivedAt: a.now().UTC(),
		Results:    results,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal attestation snapshot: %w", err)
	}

	if err := a.storage.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload attestation snapshot: %w", err)
	}
	return id, nil
}

// Load reads an archived snapshot back.
func (a *SnapshotArchiver) Load(ctx context.Context, groupID int64, period model.Period, id string) (*AttestationSnapshot, error) {
	body, err := a.storage.Download(ctx, a.Key(groupID, period, id))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var snap AttestationSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode attestation snapshot: %w", err)
	}
	return &snap, nil
}
