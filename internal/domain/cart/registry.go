package cart

import "sync"

// GetCartID returns the cart ID for a user
func GetCartID(userID string) string {
	return "cart-" + userID
}

// Registry hands out one cart per user and variant.
type Registry struct {
	cfg Config

	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, carts: make(map[string]*Cart)}
}

// Config returns the pricing rules carts are created with.
func key(userID string, variant Variant) string {
	return GetCartID(userID) + "-" + string(variant)
}

// Cart returns the cart of userID for variant, creating it on first use.
func (r *Registry) Cart(userID string, variant Variant) *Cart {
	k := key(userID, variant)

	r.mu.RLock()
	c, ok := r.carts[k]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[k]; ok {
		return c
	}
	c = New(k, variant, r.cfg)
	r.carts[k] = c
	return c
}

// HoldsBook reports whether any cart contains bookID.
func (r *Registry) HoldsBook(bookID string) bool {
	r.mu.RLock()
	carts := make([]*Cart, 0, len(r.carts))
	for _, c := range r.carts {
		carts = append(carts, c)
	}
	r.mu.RUnlock()

	for _, c := range carts {
		if c.Contains(bookID) {
			return true
		}
	}
	return false
}

// Drop forgets the carts of userID.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, key(userID, Purchase))
	delete(r.carts, key(userID, Borrow))
}
