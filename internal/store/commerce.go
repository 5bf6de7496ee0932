package store

import (
	"context"
	"fmt"
	"time"
)

// Transaction types.
const (
	TxIncome  = "income"
	TxExpense = "expense"
)

// Transaction is a single ledger entry.
type Transaction struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Type           string    `json:"type"`
	Category       string    `json:"category,omitempty"`
	Amount         float64   `json:"amount"`
	Description    string    `json:"description,omitempty"`
	Date           time.Time `json:"date"`
}

// Product is a sellable item.
type Product struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organizationId"`
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category,omitempty"`
	Price          float64 `json:"price"`
	Cost           float64 `json:"cost"`
}

// InventoryItem is the stock position of a product at a location.
type InventoryItem struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName,omitempty"`
	SKU            string `json:"sku,omitempty"`
	Quantity       int    `json:"quantity"`
	MinStock       int    `json:"minStock"`
	MaxStock       int    `json:"maxStock"`
	Location       string `json:"location,omitempty"`
}

// Order is a customer order.
type Order struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organizationId"`
	CustomerID     string      `json:"customerId,omitempty"`
	Number         string      `json:"number"`
	Status         string      `json:"status"`
	Total          float64     `json:"total"`
	CreatedAt      time.Time   `json:"createdAt"`
	Items          []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderLine is an order item joined with its product and order date, the
// shape demand analysis works on.
type OrderLine struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	OrderedAt   time.Time `json:"orderedAt"`
}

// CreateTransaction inserts a ledger entry. Date defaults to now.
func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) error {
	ctx, span := tracer.Start(ctx, "store.create_transaction")
	defer span.End()

	if t.ID == "" {
		t.ID = newID()
	}
	if t.Date.IsZero() {
		t.Date = s.clock()
	}
	t.Date = t.Date.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, organization_id, type, category, amount, description, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrganizationID, t.Type, t.Category, t.Amount, t.Description, t.Date)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}
	return nil
}

// TransactionFilter narrows Transactions. Zero values mean no constraint.
type TransactionFilter struct {
	Since time.Time
	Type  string
	Limit int
}

// Transactions lists ledger entries, newest first.
func (s *Store) Transactions(ctx context.Context, organizationID string, f TransactionFilter) ([]Transaction, error) {
	ctx, span := tracer.Start(ctx, "store.transactions")
	defer span.End()

	query := `SELECT id, organization_id, type, category, amount, description, date FROM transactions WHERE organization_id = ?`
	args := []interface{}{organizationID}
	if !f.Since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.Since.UTC())
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY date DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Type, &t.Category, &t.Amount, &t.Description, &t.Date); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	ctx, span := tracer.Start(ctx, "store.create_product")
	defer span.End()

	if p.ID == "" {
		p.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, organization_id, name, sku, description, category, price, cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrganizationID, p.Name, p.SKU, p.Description, p.Category, p.Price, p.Cost)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// CreateInventoryItem inserts a stock position.
func (s *Store) CreateInventoryItem(ctx context.Context, it *InventoryItem) error {
	ctx, span := tracer.Start(ctx, "store.create_inventory_item")
	defer span.End()

	if it.ID == "" {
		it.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_items (id, organization_id, product_id, quantity, min_stock, max_stock, location)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OrganizationID, it.ProductID, it.Quantity, it.MinStock, it.MaxStock, it.Location)
	if err != nil {
		return fmt.Errorf("creating inventory item: %w", err)
	}
	return nil
}

// Inventory lists stock positions joined with product name and SKU.
func (s *Store) Inventory(ctx context.Context, organizationID string) ([]InventoryItem, error) {
	ctx, span := tracer.Start(ctx, "store.inventory")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.organization_id, i.product_id, p.name, p.sku, i.quantity, i.min_stock, i.max_stock, i.location
		 FROM inventory_items i JOIN products p ON p.id = i.product_id
		 WHERE i.organization_id = ? ORDER BY p.sku ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	out := []InventoryItem{}
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.ID, &it.OrganizationID, &it.ProductID, &it.ProductName, &it.SKU,
			&it.Quantity, &it.MinStock, &it.MaxStock, &it.Location); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateOrder inserts an order and its items in one transaction.
// CreatedAt defaults to now.
func (s *Store) CreateOrder(ctx context.Context, o *Order) error {
	ctx, span := tracer.Start(ctx, "store.create_order")
	defer span.End()

	if o.ID == "" {
		o.ID = newID()
	}
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.clock()
	}
	o.CreatedAt = o.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, organization_id, customer_id, number, status, total, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrganizationID, o.CustomerID, o.Number, o.Status, o.Total, o.CreatedAt); err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = newID()
		}
		it.OrderID = o.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price) VALUES (?, ?, ?, ?, ?)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("creating order item: %w", err)
		}
	}
	return tx.Commit()
}

// OrdersSince lists orders created at or after since, newest first, without items.
func (s *Store) OrdersSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]Order, error) {
	ctx, span := tracer.Start(ctx, "store.orders_since")
	defer span.End()

	query := `SELECT id, organization_id, customer_id, number, status, total, created_at
		FROM orders WHERE organization_id = ? AND created_at >= ? ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{organizationID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrganizationID, &o.CustomerID, &o.Number, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrderLinesSince returns order items placed at or after since, optionally
// restricted to one product, oldest first.
func (s *Store) OrderLinesSince(ctx context.Context, organizationID string, since time.Time, productID string) ([]OrderLine, error) {
	ctx, span := tracer.Start(ctx, "store.order_lines_since")
	defer span.End()

	query := `SELECT oi.product_id, p.name, p.sku, oi.quantity, o.created_at
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.organization_id = ? AND o.created_at >= ?`
	args := []interface{}{organizationID, since.UTC()}
	if productID != "" {
		query += ` AND oi.product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY o.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order lines: %w", err)
	}
	defer rows.Close()

	out := []OrderLine{}
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SKU, &l.Quantity, &l.OrderedAt); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
