package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func Test_DefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func Test_Validate_RejectsUnevenGroupSplit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogBufferSize = 10 * datasize.MB
	cfg.NumLogGroups = 3
	require.Error(t, cfg.Validate())
}

func Test_Validate_RejectsMisalignedMetaPage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetaPageSize = 3 * datasize.KB
	require.Error(t, cfg.Validate())
}

func Test_Validate_RejectsGroupSmallerThanFooter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogBufferSize = datasize.ByteSize(cfg.NumLogGroups) // tiny
	cfg.MetaPageSize = 1
	require.Error(t, cfg.Validate())
}

func Test_Validate_RejectsUnknownPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckpointPolicy = "whenever"
	require.Error(t, cfg.Validate())
}

func Test_GroupSize_DividesEvenly(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, int(uint64(cfg.LogBufferSize)/uint64(cfg.NumLogGroups)), cfg.GroupSize())
}

func Test_Load_ParsesYAMLAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.yaml")
	contents := []byte("num_log_groups: 8\nmeta_page_size: 4096\nlog_buffer_size: 33554432\ncheckpoint_policy: manual\n")
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.NumLogGroups)
	require.Equal(t, PolicyManual, cfg.CheckpointPolicy)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/journal.yaml")
	require.Error(t, err)
}

func Test_Builder_BuildsValidConfig(t *testing.T) {
	cfg, err := NewBuilder().
		SetJournalEnable(true).
		SetLogBufferSize(16 * datasize.KB).
		SetMetaPageSize(4 * datasize.KB).
		SetNumLogGroups(4).
		SetCheckpointPolicy(PolicyAuto).
		SetCheckpointMaxRetries(5).
		Build()

	require.NoError(t, err)
	require.Equal(t, 4, cfg.NumLogGroups)
	require.Equal(t, 5, cfg.CheckpointMaxRetries)
}

func Test_Builder_BuildPropagatesValidationError(t *testing.T) {
	_, err := NewBuilder().SetNumLogGroups(0).Build()
	require.Error(t, err)
}
