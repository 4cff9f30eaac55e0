package domain

import "errors"

// ErrVariantNotFound is returned when a caller names a variant the product does not carry.
var ErrVariantNotFound = errors.New("variant not found")

// Pricing holds catalog prices in minor currency units (paise).
type Pricing struct {
	MRP          int64 `json:"mrp"`
	SellingPrice int64 `json:"selling_price"`
	Discount     int64 `json:"discount,omitempty"`
}

// Variant is a purchasable configuration of a product (pack size, weight).
type Variant struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Unit        string  `json:"unit,omitempty"`
	Pricing     Pricing `json:"pricing"`
	Stock       int     `json:"stock"`
	IsAvailable bool    `json:"is_available"`
}

// Product is a catalog product as returned by the remote catalog services.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Pricing     Pricing   `json:"pricing"`
	Stock       int       `json:"stock"`
	IsAvailable bool      `json:"is_available"`
	Variants    []Variant `json:"variants,omitempty"`
}

// SelectedVariant returns the first variant, which the catalog treats as the
// default selection. ok is false for variant-less products.
func (p Product) SelectedVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// VariantByID looks up a variant by id.
func (p Product) VariantByID(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// WithOnlyVariant returns a copy of p whose variant list holds just the named
// variant. The receiver is not modified.
func (p Product) WithOnlyVariant(id string) (Product, error) {
	v, ok := p.VariantByID(id)
	if !ok {
		return Product{}, ErrVariantNotFound
	}
	p.Variants = []Variant{v}
	return p, nil
}

// Clone returns a deep copy so stored snapshots never alias caller slices.
func (p Product) Clone() Product {
	if p.Variants != nil {
		p.Variants = append([]Variant(nil), p.Variants...)
	}
	return p
}
