package processor

import (
	"fmt"
	"strings"

	"wa-server/internal/store"
)

// Personalize substitutes [full_name], [phone], [phone_number] and arbitrary
// [<custom_field>] tokens in template from the contact's data. Tokens with no
// matching data are left verbatim. Substitution values are plain contact data,
// so re-applying the result is a no-op for non-recursive templates.
func Personalize(template string, member store.ContactListMember) string {
	message := template

	if member.FullName != nil && *member.FullName != "" {
		message = strings.ReplaceAll(message, "[full_name]", *member.FullName)
	}
	message = strings.ReplaceAll(message, "[phone]", member.PhoneNumber)
	message = strings.ReplaceAll(message, "[phone_number]", member.PhoneNumber)

	for field, value := range member.CustomFields {
		str, ok := value.(string)
		if !ok {
			str = fmt.Sprintf("%v", value)
		}
		message = strings.ReplaceAll(message, "["+field+"]", str)
	}

	return message
}
