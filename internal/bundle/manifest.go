package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestKind tags every manifest document.
const ManifestKind = "geoul/audit-bundle/v1"

// Manifest is the descriptive document written once by Finish. Field
// order is fixed by the struct, so the encoded bytes are a pure function
// of the logical value (detjson).
type Manifest struct {
	Kind             string `json:"kind"`
	Version          uint16 `json:"version"`
	StartedAt        uint64 `json:"started_at"`
	DetTier          uint32 `json:"det_tier"`
	NumBackend       uint32 `json:"num_backend"`
	TraceTier        string `json:"trace_tier"`
	CommitPolicy     uint32 `json:"commit_policy"`
	CheckpointStride uint64 `json:"checkpoint_stride"`
	StartMadi        uint64 `json:"start_madi"`
	EndMadi          uint64 `json:"end_madi"` // exclusive
	FrameCount       uint64 `json:"frame_count"`
	ByteSize         uint64 `json:"byte_size"`
	AuditHash        string `json:"audit_hash"`
	RunID            string `json:"run_id"`
	ToolchainID      string `json:"toolchain_id"`
	EntryFile        string `json:"entry_file,omitempty"`
	EntryHash        string `json:"entry_hash,omitempty"`
}

// encode renders the manifest as indented JSON with a trailing newline.
// No maps are involved, so the bytes are deterministic.
func (m *Manifest) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadManifest reads and validates the manifest of a bundle directory.
// A missing manifest means the bundle never finished recording and must
// be treated as invalid.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ErrCodeFormat, "no manifest in %s: bundle is incomplete or not a bundle", dir)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, wrapError(ErrCodeFormat, err, "parse manifest in %s", dir)
	}
	if m.Kind != ManifestKind {
		return nil, newError(ErrCodeFormat, "manifest kind %q, want %q", m.Kind, ManifestKind)
	}
	if m.EndMadi < m.StartMadi || m.EndMadi-m.StartMadi != m.FrameCount {
		return nil, newError(ErrCodeConsistency, "manifest tick range [%d,%d) disagrees with frame count %d",
			m.StartMadi, m.EndMadi, m.FrameCount)
	}
	return &m, nil
}
