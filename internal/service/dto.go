package service

import (
	"time"

	"github.com/abgdnv/storefront/internal/domain"
	"github.com/google/uuid"
)

// OrderItemCreateDto is one requested line of a new or edited order.
type OrderItemCreateDto struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	ProductName string    `json:"product_name" validate:"required"`
	Size        string    `json:"size" validate:"required"`
	Color       string    `json:"color" validate:"required"`
	Quantity    int32     `json:"quantity" validate:"required,min=1"`
	UnitPrice   int64     `json:"unit_price" validate:"min=0"`
}

// OrderCreateDto represents the data transfer object for placing a new order.
type OrderCreateDto struct {
	ClientID uuid.UUID            `json:"client_id" validate:"required"`
	Items    []OrderItemCreateDto `json:"items" validate:"required,gt=0,dive"`
}

// OrderEditDto replaces the item list of a pending order.
type OrderEditDto struct {
	Items []OrderItemCreateDto `json:"items" validate:"required,gt=0,dive"`
}

type OrderItemDto struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size"`
	Color       string    `json:"color"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	Subtotal    int64     `json:"subtotal"`
}

type OrderDto struct {
	ID        uuid.UUID      `json:"id"`
	Number    string         `json:"number"`
	ClientID  uuid.UUID      `json:"client_id"`
	Status    string         `json:"status"`
	Items     []OrderItemDto `json:"items"`
	Subtotal  int64          `json:"subtotal"`
	Tax       int64          `json:"tax"`
	Total     int64          `json:"total"`
	SaleID    *uuid.UUID     `json:"sale_id,omitempty"`
	OrderedAt string         `json:"ordered_at"`
}

type MovementsDto struct {
	Debited  bool `json:"debited"`
	Restored bool `json:"restored"`
}

type SaleDto struct {
	ID        uuid.UUID      `json:"id"`
	Number    string         `json:"number"`
	OrderID   uuid.UUID      `json:"order_id"`
	ClientID  uuid.UUID      `json:"client_id"`
	Status    string         `json:"status"`
	Items     []OrderItemDto `json:"items"`
	Subtotal  int64          `json:"subtotal"`
	Tax       int64          `json:"tax"`
	Total     int64          `json:"total"`
	Movements MovementsDto   `json:"movements"`
	CreatedAt string         `json:"created_at"`
}

// TransitionResultDto reports the outcome of a successful transition.
// Sale is set when the order was finalized; RestoredCells when a
// fulfilled order was cancelled and its stock debit reversed.
type TransitionResultDto struct {
	Order         OrderDto `json:"order"`
	Sale          *SaleDto `json:"sale,omitempty"`
	RestoredCells []string `json:"restored_cells,omitempty"`
}

// ReturnItemCreateDto selects how many units of one sold line come back.
// Zero is allowed per line; a return where every line is zero is rejected.
type ReturnItemCreateDto struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	Size           string    `json:"size" validate:"required"`
	Color          string    `json:"color" validate:"required"`
	ReturnQuantity int32     `json:"return_quantity" validate:"min=0"`
}

type ReturnCreateDto struct {
	SaleID uuid.UUID             `json:"sale_id" validate:"required"`
	Items  []ReturnItemCreateDto `json:"items" validate:"required,gt=0,dive"`
}

type ReturnItemDto struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Size           string    `json:"size"`
	Color          string    `json:"color"`
	ReturnQuantity int32     `json:"return_quantity"`
	UnitPrice      int64     `json:"unit_price"`
	Refund         int64     `json:"refund"`
}

type ReturnDto struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	SaleID    uuid.UUID       `json:"sale_id"`
	ClientID  uuid.UUID       `json:"client_id"`
	Status    string          `json:"status"`
	Items     []ReturnItemDto `json:"items"`
	Refund    int64           `json:"refund"`
	CreatedAt string          `json:"created_at"`
}

// StockSetDto seeds or corrects one stock cell (admin surface).
type StockSetDto struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Size      string    `json:"size" validate:"required"`
	Color     string    `json:"color" validate:"required"`
	Quantity  int32     `json:"quantity" validate:"min=0"`
}

type StockLevelDto struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	Quantity  int32     `json:"quantity"`
}

type BalanceDto struct {
	ClientID uuid.UUID `json:"client_id"`
	Balance  int64     `json:"balance"`
}

// ShortageDto itemizes one short stock cell of a failed finalize.
type ShortageDto struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	Available int32     `json:"available"`
	Requested int32     `json:"requested"`
}

func toOrderDto(order *domain.Order) *OrderDto {
	if order == nil {
		return nil
	}
	items := make([]OrderItemDto, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, toOrderItemDto(item))
	}
	return &OrderDto{
		ID:        order.ID,
		Number:    order.Number,
		ClientID:  order.ClientID,
		Status:    string(order.Status),
		Items:     items,
		Subtotal:  order.SubtotalMinor,
		Tax:       order.TaxMinor,
		Total:     order.TotalMinor,
		SaleID:    order.SaleID,
		OrderedAt: order.OrderedAt.Format(time.RFC3339),
	}
}

func toOrderItemDto(item domain.OrderItem) OrderItemDto {
	return OrderItemDto{
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Size:        item.Size,
		Color:       item.Color,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPriceMinor,
		Subtotal:    item.SubtotalMinor,
	}
}

func toSaleDto(sale *domain.Sale) *SaleDto {
	if sale == nil {
		return nil
	}
	items := make([]OrderItemDto, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, toOrderItemDto(item))
	}
	return &SaleDto{
		ID:       sale.ID,
		Number:   sale.Number,
		OrderID:  sale.OrderID,
		ClientID: sale.ClientID,
		Status:   string(sale.Status),
		Items:    items,
		Subtotal: sale.SubtotalMinor,
		Tax:      sale.TaxMinor,
		Total:    sale.TotalMinor,
		Movements: MovementsDto{
			Debited:  sale.Movements.Debited,
			Restored: sale.Movements.Restored,
		},
		CreatedAt: sale.CreatedAt.Format(time.RFC3339),
	}
}

func toReturnDto(ret *domain.Return) *ReturnDto {
	if ret == nil {
		return nil
	}
	items := make([]ReturnItemDto, 0, len(ret.Items))
	for _, item := range ret.Items {
		items = append(items, ReturnItemDto{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Size:           item.Size,
			Color:          item.Color,
			ReturnQuantity: item.ReturnQuantity,
			UnitPrice:      item.UnitPriceMinor,
			Refund:         item.RefundMinor,
		})
	}
	return &ReturnDto{
		ID:        ret.ID,
		Number:    ret.Number,
		SaleID:    ret.SaleID,
		ClientID:  ret.ClientID,
		Status:    string(ret.Status),
		Items:     items,
		Refund:    ret.RefundMinor,
		CreatedAt: ret.CreatedAt.Format(time.RFC3339),
	}
}

// ToShortageDtos converts the shortage list of a failed finalize for the
// transport layer.
func ToShortageDtos(shortages []domain.Shortage) []ShortageDto {
	out := make([]ShortageDto, 0, len(shortages))
	for _, s := range shortages {
		out = append(out, ShortageDto{
			ProductID: s.Key.ProductID,
			Size:      s.Key.Size,
			Color:     s.Key.Color,
			Available: s.Available,
			Requested: s.Requested,
		})
	}
	return out
}

func toDomainItems(items []OrderItemCreateDto) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPrice,
			SubtotalMinor:  int64(item.Quantity) * item.UnitPrice,
		})
	}
	return out
}
