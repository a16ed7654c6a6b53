package redis

import "strings"

// Every key lives under the "sf" namespace, e.g. sf:cart:<user>.
const keyNamespace = "sf"

func namespaced(parts ...string) string {
	out := []string{keyNamespace}
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced("idempotency", scope, id)
}

// CartKey holds the JSON cart document for a user.
func (c *Client) CartKey(userID string) string {
	return namespaced("cart", userID)
}

// PromoKey holds one promo code, already upper-cased by the caller.
func (c *Client) PromoKey(code string) string {
	return namespaced("promo", code)
}

// PromoIndexKey is the set of every stored promo code.
func (c *Client) PromoIndexKey() string {
	return namespaced("promo", "index")
}

func (c *Client) RateLimitKey(policy, subject string) string {
	return namespaced("rl", policy, subject)
}

func (c *Client) LockKey(name string) string {
	return namespaced("lock", name)
}
