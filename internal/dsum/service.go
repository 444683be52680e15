package dsum

// Service is the orchestration layer that coordinates the walker, the
// fingerprint policy, the snapshot store and the archive vault on behalf of the CLI.
type Service struct {
	store     SnapshotStore
	fsmgr     FilesystemManager
	accounts  AccountSource
	vault     Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a new Service with the provided dependencies.
// accounts, vault and encryptor may be nil: a nil AccountSource leaves the
// owner tables empty, a nil Vault disables archiving and a nil Encryptor
// archives snapshots in plaintext.
func NewService(store SnapshotStore, fsmgr FilesystemManager, accounts AccountSource, vault Vault, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		store:     store,
		fsmgr:     fsmgr,
		accounts:  accounts,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// OpenSnapshot opens a snapshot for reading.
func (s *Service) OpenSnapshot(path string) (SnapshotReader, error) {
	return s.store.Open(path)
}
