package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Attachment content is stored once per distinct byte sequence, keyed
// by its BLAKE3 hash and compressed with zstd. ref_count tracks how
// many sources point at a blob; a blob is deleted when the count
// reaches zero.

var (
	blobEncoder *zstd.Encoder
	blobDecoder *zstd.Decoder
)

func init() {
	var err error
	blobEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("store: init zstd encoder: %v", err))
	}
	blobDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("store: init zstd decoder: %v", err))
	}
}

// HashContent returns the hex BLAKE3 digest used as a blob key.
func HashContent(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// putBlob stores content (or bumps the refcount of an identical
// existing blob) and returns its hash. Runs inside the caller's
// transaction.
func putBlob(tx *sql.Tx, content []byte) (string, error) {
	hash := HashContent(content)

	res, err := tx.Exec(`UPDATE blobs SET ref_count = ref_count + 1 WHERE hash = ?`, hash)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n > 0 {
		return hash, nil
	}

	compressed := blobEncoder.EncodeAll(content, nil)
	if _, err := tx.Exec(`INSERT INTO blobs (hash, data, size, ref_count) VALUES (?, ?, ?, 1)`,
		hash, compressed, len(content)); err != nil {
		return "", err
	}
	return hash, nil
}

// releaseBlob drops one reference and reclaims the blob when no
// references remain. Runs inside the caller's transaction.
func releaseBlob(tx *sql.Tx, hash string) error {
	if _, err := tx.Exec(`UPDATE blobs SET ref_count = ref_count - 1 WHERE hash = ?`, hash); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM blobs WHERE hash = ? AND ref_count <= 0`, hash)
	return err
}

// getBlob inflates a blob's content by hash.
func (s *Store) getBlob(hash string) ([]byte, error) {
	var compressed []byte
	var size int64
	err := s.db.QueryRow(`SELECT data, size FROM blobs WHERE hash = ?`, hash).Scan(&compressed, &size)
	if err == sql.ErrNoRows {
		return nil, &StorageError{Op: "load blob", Err: fmt.Errorf("blob %s not found", hash)}
	}
	if err != nil {
		return nil, &StorageError{Op: "load blob", Err: err}
	}

	content, err := blobDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, &StorageError{Op: "decompress blob", Err: err}
	}
	return content, nil
}

// BlobRefCount reports the current reference count for a blob hash, or
// zero when the blob has been reclaimed.
func (s *Store) BlobRefCount(hash string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT ref_count FROM blobs WHERE hash = ?`, hash).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: "read blob refcount", Err: err}
	}
	return count, nil
}
