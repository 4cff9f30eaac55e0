package domain

// WishlistEntry is a favourited product. When the user favourited a specific
// variant, Product.Variants holds only that variant.
type WishlistEntry struct {
	Product Product `json:"product"`
}

// WishlistKey is the single identity rule for wishlist entries: the selected
// variant id when the product has variants, otherwise the product id.
func WishlistKey(p Product) string {
	if v, ok := p.SelectedVariant(); ok && v.ID != "" {
		return v.ID
	}
	return p.ID
}

// Key returns the entry's wishlist identity.
func (e WishlistEntry) Key() string {
	return WishlistKey(e.Product)
}
