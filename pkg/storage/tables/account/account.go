// Package account implements the accounts table: a username-keyed
// indexed table holding a salted password blob, role, timestamps, and
// lockout/suspension flags. The hashing algorithm is the caller's
// choice; the table stores whatever opaque hash bytes it is given.
package account

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
)

var bucket = []byte("accounts")

// Role is an account's privilege tier.
type Role uint8

const (
	RoleSystemAdministrator Role = iota
	RoleSecurityAdministrator
	RoleSecurityManager
	RoleSecurityMonitor
)

// Account is one row of the accounts table.
type Account struct {
	Username            string
	PasswordHash        []byte // opaque; hashing algorithm choice is out of scope
	Role                Role
	CreationTime        int64
	LastSigninTime      *int64
	FailedLoginAttempts uint8
	LockedOutUntil      *int64
	IsSuspended         bool
}

func (a Account) UniqueKey() []byte { return []byte(a.Username) }

func (a Account) Value() []byte {
	var buf []byte
	buf = codec.Bytes(buf, a.PasswordHash)
	buf = append(buf, byte(a.Role))
	buf = codec.LE64(buf, uint64(a.CreationTime))
	buf = optionalTime(buf, a.LastSigninTime)
	buf = append(buf, a.FailedLoginAttempts)
	buf = optionalTime(buf, a.LockedOutUntil)
	if a.IsSuspended {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func optionalTime(dst []byte, t *int64) []byte {
	if t == nil {
		return append(dst, codec.NoneTag)
	}
	dst = append(dst, codec.SomeTag)
	return codec.LE64(dst, uint64(*t))
}

func readOptionalTime(buf []byte) (*int64, []byte) {
	tag := buf[0]
	buf = buf[1:]
	if tag == codec.NoneTag {
		return nil, buf
	}
	v := int64(codec.DecodeLE64(buf))
	return &v, buf[8:]
}

func decode(key, value []byte) (Account, error) {
	a := Account{Username: string(key)}
	buf := value
	a.PasswordHash, buf = codec.ReadBytes(buf)
	a.Role = Role(buf[0])
	buf = buf[1:]
	a.CreationTime = int64(codec.DecodeLE64(buf))
	buf = buf[8:]
	a.LastSigninTime, buf = readOptionalTime(buf)
	a.FailedLoginAttempts = buf[0]
	buf = buf[1:]
	a.LockedOutUntil, buf = readOptionalTime(buf)
	a.IsSuspended = buf[0] != 0
	return a, nil
}

// Table is the accounts table.
type Table struct {
	m *indexedmap.Map[Account]
}

// Open wraps the accounts bucket.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Account](db, bucket, decode, nil)
	if err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

func (tb *Table) Insert(a Account) (uint32, error) { return tb.m.Insert(a) }
func (tb *Table) GetByID(id uint32) (Account, error) { return tb.m.GetByID(id) }
func (tb *Table) Remove(id uint32) ([]byte, error) { return tb.m.Remove(id) }
func (tb *Table) Count() (int, error) { return tb.m.Count() }

// GetByUsername looks up the active account with the given username.
func (tb *Table) GetByUsername(username string) (Account, bool, error) {
	id, ok, err := tb.m.FindID([]byte(username))
	if err != nil || !ok {
		return Account{}, false, err
	}
	a, err := tb.m.GetByID(id)
	return a, err == nil, err
}

// update replaces the mutable fields of an account verified against a
// prior snapshot, e.g. recording a signin or a lockout.
type update struct {
	expected Account
	next     Account
}

func (u update) Verify(stored Account) bool { return stored.Username == u.expected.Username }
func (u update) Apply(stored Account) Account {
	next := u.next
	next.Username = stored.Username
	return next
}

// Update replaces the row at id, keeping the username fixed.
func (tb *Table) Update(id uint32, expected, next Account) error {
	return tb.m.Update(id, update{expected: expected, next: next})
}
