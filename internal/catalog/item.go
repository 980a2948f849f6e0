package catalog

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type PriceSource string

const (
	PriceSourceLatestBatch PriceSource = "latest_batch"
	PriceSourceProduct     PriceSource = "product"
	PriceSourceNone        PriceSource = "none"
)

// Item is a product enriched with its effective prices and live batches.
type Item struct {
	domain.Product

	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	PriceSource       PriceSource     `json:"price_source"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Batches           []domain.Batch  `json:"batches"`
}

func (i Item) SearchBatches() []string {
	out := make([]string, 0, len(i.Batches))
	for _, b := range i.Batches {
		if b.BatchNumber != "" {
			out = append(out, b.BatchNumber)
		}
	}
	return out
}

// State is one published catalog.
type State struct {
	Items     []Item    `json:"items"`
	Overrides int       `json:"overrides"`
	Degraded  bool      `json:"degraded"`
	Source    string    `json:"source"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Merge builds catalog items from live products. A price override wins over
// the product's flat prices; batches attach by product id.
func Merge(products []domain.Product, batches []domain.Batch, overrides map[snowflake.ID]domain.PriceOverride) []Item {
	byProduct := make(map[snowflake.ID][]domain.Batch)
	for _, b := range batches {
		if !b.Status.Live() {
			continue
		}
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}

	items := make([]Item, 0, len(products))
	for _, p := range products {
		if !p.Status.Live() {
			continue
		}
		item := Item{
			Product:           p,
			Batches:           byProduct[p.ID],
			AvailableQuantity: decimal.Zero,
			PriceSource:       PriceSourceNone,
		}
		for _, b := range item.Batches {
			item.AvailableQuantity = item.AvailableQuantity.Add(b.Quantity)
		}

		if o, ok := overrides[p.ID]; ok {
			item.PurchasePrice = o.PurchasePrice
			item.SellingPrice = o.SellingPrice
			item.PriceSource = PriceSourceLatestBatch
		} else if p.PurchasePrice.Valid || p.SellingPrice.Valid {
			item.PurchasePrice = p.PurchasePrice.Decimal
			item.SellingPrice = p.SellingPrice.Decimal
			item.PriceSource = PriceSourceProduct
		}
		items = append(items, item)
	}
	return items
}
