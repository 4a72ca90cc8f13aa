package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/config"
	"github.com/cheolho-kang/poseidonos/internal/journal/metastorage"
	"github.com/cheolho-kang/poseidonos/internal/obs/logging"
)

// openJournal loads cfg from configPath and opens the backing store for
// inspection. Neither inspect nor replay ever calls Reserve or Roll, so no
// record or footer is written; metastorage.Open does create the file if it
// is missing and sets its length to the configured log buffer size.
func openJournal(configPath, storePath string) (*buffer.LogBuffer, *config.Config, *metastorage.FileStorage, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	log, _, err := logging.Init(logging.DefaultConfig())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("journalctl: logging init: %w", err)
	}

	store, err := metastorage.Open(storePath, int64(cfg.LogBufferSize))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	buf := buffer.New(cfg.NumLogGroups, cfg.GroupSize(), int(cfg.MetaPageSize), store, log)
	return buf, cfg, store, log, nil
}
