package webhosting

import (
	"fmt"
	"strconv"

	"github.com/kuitang/hostdesk/internal/errs"
)

// Unlimited is the count value meaning "no limit".
const Unlimited = -1

var ErrInvalidConstraints = errs.New(errs.InvalidArgument, "invalid constraints")

// EmailConstraints limit the mail service of a hosting account.
type EmailConstraints struct {
	MaxStorageSize      ByteSize `json:"max_storage_size" yaml:"max_storage_size"`
	MaximumMailboxCount int      `json:"maximum_mailbox_count" yaml:"maximum_mailbox_count"`
	MaximumForwardCount int      `json:"maximum_forward_count" yaml:"maximum_forward_count"`
	MaximumAddressCount int      `json:"maximum_address_count" yaml:"maximum_address_count"`
	SpamFilterCount     int      `json:"spam_filter_count" yaml:"spam_filter_count"`
	MailListCount       int      `json:"mail_list_count" yaml:"mail_list_count"`
}

// DatabaseConstraints limit the databases of a hosting account.
type DatabaseConstraints struct {
	ProvidedStorageSize  ByteSize `json:"provided_storage_size" yaml:"provided_storage_size"`
	MaximumAmountPerType int      `json:"maximum_amount_per_type" yaml:"maximum_amount_per_type"`
	EnabledPgsql         bool     `json:"enabled_pgsql" yaml:"enabled_pgsql"`
	EnabledMysql         bool     `json:"enabled_mysql" yaml:"enabled_mysql"`
}

// Constraints is the resource envelope of a webhosting plan. It is a value:
// compare with Equal, never by pointer.
type Constraints struct {
	StorageSize    ByteSize            `json:"storage_size" yaml:"storage_size"`
	MonthlyTraffic int                 `json:"monthly_traffic" yaml:"monthly_traffic"` // GiB, Unlimited allowed
	Email          EmailConstraints    `json:"email" yaml:"email"`
	Database       DatabaseConstraints `json:"database" yaml:"database"`
}

// Change is one field that differs between two Constraints.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New)
}

type field struct {
	path  string
	value string
}

// fields flattens c in declaration order. Changes relies on both sides
// producing the same paths in the same order.
func (c Constraints) fields() []field {
	return []field{
		{"storage_size", c.StorageSize.String()},
		{"monthly_traffic", formatCount(c.MonthlyTraffic)},
		{"email.max_storage_size", c.Email.MaxStorageSize.String()},
		{"email.maximum_mailbox_count", formatCount(c.Email.MaximumMailboxCount)},
		{"email.maximum_forward_count", formatCount(c.Email.MaximumForwardCount)},
		{"email.maximum_address_count", formatCount(c.Email.MaximumAddressCount)},
		{"email.spam_filter_count", formatCount(c.Email.SpamFilterCount)},
		{"email.mail_list_count", formatCount(c.Email.MailListCount)},
		{"database.provided_storage_size", c.Database.ProvidedStorageSize.String()},
		{"database.maximum_amount_per_type", formatCount(c.Database.MaximumAmountPerType)},
		{"database.enabled_pgsql", strconv.FormatBool(c.Database.EnabledPgsql)},
		{"database.enabled_mysql", strconv.FormatBool(c.Database.EnabledMysql)},
	}
}

// Changes lists every field whose value differs from c in next, in
// declaration order. An empty result means the two are equal.
func (c Constraints) Changes(next Constraints) []Change {
	before, after := c.fields(), next.fields()
	var changes []Change
	for i := range before {
		if before[i].value != after[i].value {
			changes = append(changes, Change{Field: before[i].path, Old: before[i].value, New: after[i].value})
		}
	}
	return changes
}

func (c Constraints) Equal(other Constraints) bool {
	return len(c.Changes(other)) == 0
}

// Validate rejects counts below Unlimited.
func (c Constraints) Validate() error {
	counts := []struct {
		name  string
		value int
	}{
		{"monthly_traffic", c.MonthlyTraffic},
		{"email.maximum_mailbox_count", c.Email.MaximumMailboxCount},
		{"email.maximum_forward_count", c.Email.MaximumForwardCount},
		{"email.maximum_address_count", c.Email.MaximumAddressCount},
		{"email.spam_filter_count", c.Email.SpamFilterCount},
		{"email.mail_list_count", c.Email.MailListCount},
		{"database.maximum_amount_per_type", c.Database.MaximumAmountPerType},
	}
	for _, f := range counts {
		if f.value < Unlimited {
			return fmt.Errorf("%w: %s must be >= 0 or %d (unlimited), got %d", ErrInvalidConstraints, f.name, Unlimited, f.value)
		}
	}
	return nil
}

func formatCount(n int) string {
	if n == Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
