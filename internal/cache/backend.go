package cache

import "context"

type Op string

// VersionField is the hash field ExecIfNotNewer compares against.
const VersionField = "version"

const (
	OpHSet Op = "HSET"
	OpDel  Op = "DEL"
	OpSAdd Op = "SADD"
	OpSRem Op = "SREM"
)

// Command is one write inside an atomic batch.
type Command struct {
	Op      Op
	Key     string
	Fields  map[string]string
	Members []string
}

func HSet(key string, fields map[string]string) Command {
	return Command{Op: OpHSet, Key: key, Fields: fields}
}

func Del(key string) Command { return Command{Op: OpDel, Key: key} }

func SAdd(key string, members ...string) Command {
	return Command{Op: OpSAdd, Key: key, Members: members}
}

func SRem(key string, members ...string) Command {
	return Command{Op: OpSRem, Key: key, Members: members}
}

// Backend is the key/value store the synchronizer runs against. Exec must
// apply the whole batch in one atomic unit (MULTI/EXEC for Redis); readers
// never observe a partially applied batch.
type Backend interface {
	Exec(ctx context.Context, cmds []Command) error
	// ExecIfNotNewer applies cmds unless the hash at key holds a VersionField
	// greater than version. The read and the batch are one atomic unit.
	ExecIfNotNewer(ctx context.Context, key string, version int64, cmds []Command) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HGetAllMany reads several hashes in one round trip. Missing keys yield
	// empty maps at the same index.
	HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
