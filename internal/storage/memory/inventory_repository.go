package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type txInventory struct {
	tx *memTx
}

func inventoryLockKey(id int64) string {
	return fmt.Sprintf("inventory:%d", id)
}

func (r *txInventory) LockByBook(ctx context.Context, bookID int64) ([]domain.Inventory, error) {
	return r.LockByBooks(ctx, []int64{bookID})
}

func (r *txInventory) LockByBooks(ctx context.Context, bookIDs []int64) ([]domain.Inventory, error) {
	ids := r.tx.store.committedStockIDs(bookIDs...)
	rows := make([]domain.Inventory, 0, len(ids))
	for _, id := range ids {
		if err := r.tx.lock(ctx, inventoryLockKey(id)); err != nil {
			return nil, err
		}
		row, ok := r.tx.inventoryRow(id)
		if !ok {
			continue
		}
		rows = append(rows, r.tx.store.withWarehouseCode(row))
	}
	return rows, nil
}

func (r *txInventory) Lock(ctx context.Context, warehouseID, bookID int64) (domain.Inventory, error) {
	id, ok := r.tx.store.stockID(warehouseID, bookID)
	if !ok {
		return domain.Inventory{}, domain.NoInventory(bookID)
	}
	if err := r.tx.lock(ctx, inventoryLockKey(id)); err != nil {
		return domain.Inventory{}, err
	}
	row, ok := r.tx.inventoryRow(id)
	if !ok {
		return domain.Inventory{}, domain.NoInventory(bookID)
	}
	return r.tx.store.withWarehouseCode(row), nil
}

func (r *txInventory) UpdateQuantity(_ context.Context, inventoryID int64, quantity int) error {
	if _, held := r.tx.held[inventoryLockKey(inventoryID)]; !held {
		return domain.Persistence("update inventory", fmt.Errorf("inventory %d is not locked by this transaction", inventoryID))
	}
	if quantity < 0 {
		return domain.InvalidArgument("inventory quantity must be non-negative, got %d", quantity)
	}
	row, ok := r.tx.inventoryRow(inventoryID)
	if !ok {
		return domain.Persistence("update inventory", fmt.Errorf("inventory %d disappeared", inventoryID))
	}
	row.Quantity = quantity
	row.UpdatedAt = r.tx.store.now()
	r.tx.inventory[inventoryID] = row
	return nil
}

func (s *Store) stockID(warehouseID, bookID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.stockIndex[stockKey{warehouseID: warehouseID, bookID: bookID}]
	return id, ok
}

func (s *Store) withWarehouseCode(row domain.Inventory) domain.Inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if wh, ok := s.warehouses[row.WarehouseID]; ok {
		row.WarehouseCode = wh.Code
	}
	return row
}

type catalogRepository struct {
	store *Store
}

func (r *catalogRepository) SaveBook(_ context.Context, book domain.Book) (domain.Book, error) {
	if book.Price.IsNegative() {
		return domain.Book{}, domain.InvalidArgument("book price must be non-negative")
	}
	if book.Currency == "" {
		book.Currency = domain.DefaultCurrency
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if book.ID == 0 {
		s.seq.book++
		book.ID = s.seq.book
	} else if book.ID > s.seq.book {
		s.seq.book = book.ID
	}
	s.books[book.ID] = book
	return book, nil
}

func (r *catalogRepository) GetBook(_ context.Context, id int64) (domain.Book, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, nil
}

func (r *catalogRepository) SaveWarehouse(_ context.Context, warehouse domain.Warehouse) (domain.Warehouse, error) {
	if warehouse.Code == "" {
		return domain.Warehouse{}, domain.InvalidArgument("warehouse code is required")
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.warehouses {
		if existing.Code == warehouse.Code && id != warehouse.ID {
			if warehouse.ID != 0 {
				return domain.Warehouse{}, domain.InvalidArgument("warehouse code %s is already used", warehouse.Code)
			}
			warehouse.ID = id
		}
	}
	if warehouse.ID == 0 {
		s.seq.warehouse++
		warehouse.ID = s.seq.warehouse
	} else if warehouse.ID > s.seq.warehouse {
		s.seq.warehouse = warehouse.ID
	}
	s.warehouses[warehouse.ID] = warehouse
	return warehouse, nil
}

// SetStock пишет остаток в обход ledger и используется только для наполнения данных.
// Запись идёт под блокировкой строки, чтобы не затереть незавершённую транзакцию.
func (r *catalogRepository) SetStock(ctx context.Context, warehouseID, bookID int64, quantity int) (domain.Inventory, error) {
	if quantity < 0 {
		return domain.Inventory{}, domain.InvalidArgument("stock quantity must be non-negative, got %d", quantity)
	}

	s := r.store
	s.mu.Lock()
	wh, ok := s.warehouses[warehouseID]
	if !ok {
		s.mu.Unlock()
		return domain.Inventory{}, domain.ErrWarehouseNotFound
	}
	if _, ok := s.books[bookID]; !ok {
		s.mu.Unlock()
		return domain.Inventory{}, domain.ErrBookNotFound
	}
	key := stockKey{warehouseID: warehouseID, bookID: bookID}
	id, exists := s.stockIndex[key]
	if !exists {
		s.seq.inventory++
		id = s.seq.inventory
		s.stockIndex[key] = id
		s.inventory[id] = domain.Inventory{ID: id, WarehouseID: warehouseID, BookID: bookID, UpdatedAt: s.now()}
	}
	s.mu.Unlock()

	l := s.locks.get(inventoryLockKey(id))
	if err := l.lock(ctx); err != nil {
		return domain.Inventory{}, domain.Persistence("lock inventory", err)
	}
	defer l.unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.inventory[id]
	row.Quantity = quantity
	row.UpdatedAt = s.now()
	s.inventory[id] = row
	row.WarehouseCode = wh.Code
	return row, nil
}

func (r *catalogRepository) ListStock(_ context.Context, bookID int64) ([]domain.Inventory, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.Inventory, 0, 2)
	for _, row := range s.inventory {
		if row.BookID != bookID {
			continue
		}
		if wh, ok := s.warehouses[row.WarehouseID]; ok {
			row.WarehouseCode = wh.Code
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

var (
	_ domain.InventoryRepository = (*txInventory)(nil)
	_ domain.CatalogRepository   = (*catalogRepository)(nil)
)
