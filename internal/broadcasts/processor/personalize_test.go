package processor

import (
	"testing"

	"wa-server/internal/store"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestPersonalize(t *testing.T) {
	t.Run("substitutes all known tokens", func(t *testing.T) {
		member := store.ContactListMember{
			PhoneNumber: "+15550001111",
			FullName:    strPtr("Ada Lovelace"),
			CustomFields: store.JSONB{
				"company": "Analytical Engines Ltd",
			},
		}

		got := Personalize("Hi [full_name] ([phone]), call [phone_number] re [company]", member)
		assert.Equal(t, "Hi Ada Lovelace (+15550001111), call +15550001111 re Analytical Engines Ltd", got)
	})

	t.Run("leaves unmatched tokens verbatim", func(t *testing.T) {
		member := store.ContactListMember{PhoneNumber: "+15550001111"}

		got := Personalize("Hi [full_name], your code is [discount_code]", member)
		assert.Equal(t, "Hi [full_name], your code is [discount_code]", got)
	})

	t.Run("missing full name keeps token", func(t *testing.T) {
		member := store.ContactListMember{
			PhoneNumber: "+15550001111",
			FullName:    strPtr(""),
		}

		got := Personalize("Hi [full_name]", member)
		assert.Equal(t, "Hi [full_name]", got)
	})

	t.Run("non-string custom fields are formatted", func(t *testing.T) {
		member := store.ContactListMember{
			PhoneNumber:  "+15550001111",
			CustomFields: store.JSONB{"points": float64(42)},
		}

		got := Personalize("You have [points] points", member)
		assert.Equal(t, "You have 42 points", got)
	})

	t.Run("idempotent for non-recursive templates", func(t *testing.T) {
		member := store.ContactListMember{
			PhoneNumber:  "+15550001111",
			FullName:     strPtr("Ada"),
			CustomFields: store.JSONB{"company": "Acme"},
		}

		template := "Hi [full_name] from [company], we have [phone] and [missing]"
		once := Personalize(template, member)
		twice := Personalize(once, member)
		assert.Equal(t, once, twice)
	})
}

func TestDelaySeconds(t *testing.T) {
	custom := 7

	assert.Equal(t, 30, DelaySeconds(store.SendSpeedSlow, nil))
	assert.Equal(t, 20, DelaySeconds(store.SendSpeedNormal, nil))
	assert.Equal(t, 10, DelaySeconds(store.SendSpeedFast, nil))
	assert.Equal(t, 7, DelaySeconds(store.SendSpeedCustom, &custom))
	assert.Equal(t, 20, DelaySeconds(store.SendSpeedCustom, nil))
	assert.Equal(t, 20, DelaySeconds("", nil))
}
