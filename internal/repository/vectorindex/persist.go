package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
)

// Persistence artifacts: a binary vector file and a JSON metadata sidecar.
// Both are required together; loading with either missing is an error.
const (
	vectorsFile = "vectors.bin"
	sidecarFile = "documents.json"
)

var fileMagic = [4]byte{'R', 'G', 'V', 'I'}

const fileVersion uint32 = 1

type sidecarDoc struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

type sidecar struct {
	Documents []sidecarDoc `json:"documents"`
}

// Save writes the vector file and metadata sidecar into dir, creating it if
// needed. Vector order matches sidecar order so Load can rejoin them.
func (ix *Index) Save(dir string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dim == 0 {
		return domain.ErrIndexNotInitialized
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	writeUint32(&buf, fileVersion)
	writeUint32(&buf, uint32(ix.dim))
	writeUint32(&buf, uint32(len(ix.docs)))

	side := sidecar{Documents: make([]sidecarDoc, 0, len(ix.docs))}
	for _, doc := range ix.docs {
		for _, v := range doc.Embedding {
			writeUint32(&buf, math.Float32bits(v))
		}
		side.Documents = append(side.Documents, sidecarDoc{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
	}

	if err := os.WriteFile(filepath.Join(dir, vectorsFile), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write vector file: %w", err)
	}

	sideData, err := json.Marshal(side)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sidecarFile), sideData, 0o600); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	ix.logger.Info("index saved",
		zap.String("dir", dir),
		zap.Int("documents", len(ix.docs)),
		zap.Int("dimensions", ix.dim),
	)
	return nil
}

// Load reconstructs searchable state from dir. On any failure the in-memory
// state is left untouched.
func (ix *Index) Load(dir string) error {
	vecPath := filepath.Join(dir, vectorsFile)
	sidePath := filepath.Join(dir, sidecarFile)

	for _, p := range []string{vecPath, sidePath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%s: %w", p, domain.ErrIndexArtifactMissing)
		}
	}

	raw, err := os.ReadFile(filepath.Clean(vecPath))
	if err != nil {
		return fmt.Errorf("read vector file: %w", err)
	}
	dim, vectors, err := decodeVectors(raw)
	if err != nil {
		return fmt.Errorf("decode vector file: %w", err)
	}

	sideData, err := os.ReadFile(filepath.Clean(sidePath))
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}
	var side sidecar
	if err := json.Unmarshal(sideData, &side); err != nil {
		return fmt.Errorf("parse sidecar: %w", err)
	}

	if len(side.Documents) != len(vectors) {
		return fmt.Errorf(
			"sidecar has %d documents, vector file has %d: %w",
			len(side.Documents), len(vectors), domain.ErrIndexArtifactMissing,
		)
	}

	docs := make([]domain.Document, len(vectors))
	byID := make(map[string]int, len(vectors))
	for i, sd := range side.Documents {
		docs[i] = domain.Document{
			ID:        sd.ID,
			Content:   sd.Content,
			Metadata:  sd.Metadata,
			Embedding: vectors[i],
		}
		byID[sd.ID] = i
	}

	ix.mu.Lock()
	ix.dim = dim
	ix.docs = docs
	ix.byID = byID
	ix.mu.Unlock()

	ix.logger.Info("index loaded",
		zap.String("dir", dir),
		zap.Int("documents", len(docs)),
		zap.Int("dimensions", dim),
	)
	return nil
}

func decodeVectors(raw []byte) (int, [][]float32, error) {
	const headerLen = 16
	if len(raw) < headerLen {
		return 0, nil, fmt.Errorf("vector file too short: %d bytes", len(raw))
	}
	if !bytes.Equal(raw[:4], fileMagic[:]) {
		return 0, nil, fmt.Errorf("bad magic %q", raw[:4])
	}
	if v := binary.LittleEndian.Uint32(raw[4:]); v != fileVersion {
		return 0, nil, fmt.Errorf("unsupported vector file version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(raw[8:]))
	count := int(binary.LittleEndian.Uint32(raw[12:]))

	body := raw[headerLen:]
	if len(body) != dim*count*4 {
		return 0, nil, fmt.Errorf(
			"vector body has %d bytes, expected %d (dim=%d count=%d)",
			len(body), dim*count*4, dim, count,
		)
	}

	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(body[(i*dim+j)*4:])
			vec[j] = math.Float32frombits(bits)
		}
		vectors[i] = vec
	}
	return dim, vectors, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
