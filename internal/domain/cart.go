package domain

// CartProduct is the snapshot of a purchasable line captured when it is added
// to the cart. ID is the variant-granular key (the variant id when the product
// has variants, otherwise the product id).
type CartProduct struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	Name          string `json:"name"`
	ImageURL      string `json:"image_url,omitempty"`
	Unit          string `json:"unit,omitempty"`
	Price         int64  `json:"price"`
	DiscountPrice *int64 `json:"discount_price,omitempty"`
	Stock         int    `json:"stock"`
}

// EffectivePrice is the discounted price when one is set, otherwise the list price.
func (p CartProduct) EffectivePrice() int64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// NewCartProduct projects a catalog product onto a cart line. An empty
// variantID picks the selected variant when the product has any.
func NewCartProduct(p Product, variantID string) (CartProduct, error) {
	cp := CartProduct{
		ID:        p.ID,
		ProductID: p.ID,
		Name:      p.Name,
		ImageURL:  p.ImageURL,
		Unit:      p.Unit,
	}
	pricing := p.Pricing
	stock := p.Stock

	if len(p.Variants) > 0 {
		var (
			v  Variant
			ok bool
		)
		if variantID == "" {
			v, ok = p.SelectedVariant()
		} else {
			v, ok = p.VariantByID(variantID)
		}
		if !ok {
			return CartProduct{}, ErrVariantNotFound
		}
		cp.ID = v.ID
		cp.VariantID = v.ID
		if v.Unit != "" {
			cp.Unit = v.Unit
		} else if v.Name != "" {
			cp.Unit = v.Name
		}
		pricing = v.Pricing
		stock = v.Stock
		if !v.IsAvailable {
			stock = 0
		}
	} else if variantID != "" && variantID != p.ID {
		return CartProduct{}, ErrVariantNotFound
	}

	cp.Price = pricing.MRP
	if pricing.SellingPrice > 0 && pricing.SellingPrice < pricing.MRP {
		sp := pricing.SellingPrice
		cp.DiscountPrice = &sp
	}
	if cp.Price == 0 {
		cp.Price = pricing.SellingPrice
	}
	cp.Stock = max(stock, 0)
	return cp, nil
}

// CartItem is one line of the cart.
type CartItem struct {
	Product  CartProduct `json:"product"`
	Quantity int         `json:"quantity"`
}

// LineTotal is the effective price times quantity.
func (i CartItem) LineTotal() int64 {
	return i.Product.EffectivePrice() * int64(i.Quantity)
}
