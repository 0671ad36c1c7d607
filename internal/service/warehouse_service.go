package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/model"
	"magazyn/internal/store"
	"magazyn/pkg/logger"
	"magazyn/pkg/password"
	"magazyn/prometheus"
)

// WarehouseService manages warehouses and who may use them
type WarehouseService struct {
	warehouses store.WarehouseStore
	passwords  *password.Policy
}

func NewWarehouseService(warehouses store.WarehouseStore, passwords *password.Policy) *WarehouseService {
	return &WarehouseService{warehouses: warehouses, passwords: passwords}
}

// List returns the warehouses the user belongs to
func (s *WarehouseService) List(ctx context.Context, userID string) ([]model.Warehouse, error) {
	list, err := s.warehouses.ListWarehousesForUser(ctx, userID)
	if err != nil {
		return nil, fromStore(err, "list warehouses", "warehouse not found")
	}
	return list, nil
}

// Create stores a warehouse owned by ownerID, who becomes its first member
func (s *WarehouseService) Create(ctx context.Context, name, pass, ownerID string) (*model.Warehouse, error) {
	log := logger.FromStdContext(ctx)

	name, pass, err := credentials(name, pass, "warehouse")
	if err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	wh := &model.Warehouse{ID: uuid.NewString(), Name: name, PasswordHash: hash, OwnerID: ownerID}
	if err := s.warehouses.CreateWarehouse(ctx, wh); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("Warehouse name already taken", zap.String("name", name))
			return nil, apperr.Conflict("warehouse name already taken")
		}
		return nil, fromStore(err, "create warehouse", "warehouse not found")
	}

	prometheus.RecordWarehouseOperation("create")
	log.Info("Warehouse created", zap.String("warehouse_id", wh.ID), zap.String("owner_id", ownerID))
	return wh, nil
}

// Join adds the user to the warehouse matching name and password. Joining
// a warehouse twice is not an error.
func (s *WarehouseService) Join(ctx context.Context, name, pass, userID string) (*model.Warehouse, error) {
	log := logger.FromStdContext(ctx)

	name, pass, err := credentials(name, pass, "warehouse")
	if err != nil {
		return nil, err
	}

	// Find warehouse
	wh, err := s.warehouses.FindWarehouseByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Connect to unknown warehouse", zap.String("name", name))
		prometheus.RecordAuthError("warehouse_login_failure")
		return nil, apperr.Unauthorized("invalid warehouse name or password")
	}
	if err != nil {
		return nil, fromStore(err, "find warehouse", "warehouse not found")
	}
	// Verify password
	if !s.passwords.Verify(pass, wh.PasswordHash) {
		log.Warn("Invalid warehouse password", zap.String("warehouse_id", wh.ID))
		prometheus.RecordAuthError("warehouse_login_failure")
		return nil, apperr.Unauthorized("invalid warehouse name or password")
	}

	if s.passwords.NeedsUpgrade(wh.PasswordHash) {
		hash, err := s.passwords.Hash(pass)
		if err != nil {
			return nil, fmt.Errorf("rehash password: %w", err)
		}
		if err := s.warehouses.UpdateWarehousePassword(ctx, wh.ID, hash); err != nil {
			return nil, fromStore(err, "upgrade warehouse password", "warehouse not found")
		}
		wh.PasswordHash = hash
		prometheus.RecordPasswordUpgrade("warehouse")
		log.Info("Upgraded legacy warehouse password hash", zap.String("warehouse_id", wh.ID))
	}

	// Add membership
	if err := s.warehouses.AddMember(ctx, userID, wh.ID); err != nil {
		return nil, fromStore(err, "add member", "warehouse not found")
	}

	prometheus.RecordWarehouseOperation("connect")
	log.Info("User connected to warehouse", zap.String("warehouse_id", wh.ID), zap.String("user_id", userID))
	return wh, nil
}

// Authorize checks that the warehouse exists and the user is a member
func (s *WarehouseService) Authorize(ctx context.Context, userID, warehouseID string) (*model.Warehouse, error) {
	if !validID(warehouseID) {
		return nil, apperr.NotFound("warehouse not found")
	}
	wh, err := s.warehouses.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, fromStore(err, "get warehouse", "warehouse not found")
	}
	// Check membership
	member, err := s.warehouses.IsMember(ctx, userID, warehouseID)
	if err != nil {
		return nil, fromStore(err, "check membership", "warehouse not found")
	}
	if !member {
		prometheus.RecordAuthError("forbidden")
		return nil, apperr.Forbidden("no access to this warehouse")
	}
	return wh, nil
}

// LeaveOrDelete deletes the warehouse when the user owns it and otherwise
// only ends the user's membership.
func (s *WarehouseService) LeaveOrDelete(ctx context.Context, warehouseID, userID string) (string, error) {
	log := logger.FromStdContext(ctx)

	if !validID(warehouseID) {
		return "", apperr.NotFound("warehouse not found")
	}
	wh, err := s.warehouses.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return "", fromStore(err, "get warehouse", "warehouse not found")
	}

	// Owner deletes, members leave
	if wh.OwnerID == userID {
		if err := s.warehouses.DeleteWarehouse(ctx, warehouseID); err != nil {
			return "", fromStore(err, "delete warehouse", "warehouse not found")
		}
		prometheus.RecordWarehouseOperation("delete")
		log.Info("Warehouse deleted", zap.String("warehouse_id", warehouseID), zap.String("owner_id", userID))
		return model.ScopeDeleted, nil
	}

	if err := s.warehouses.RemoveMember(ctx, userID, warehouseID); err != nil {
		return "", fromStore(err, "remove member", "membership not found")
	}
	prometheus.RecordWarehouseOperation("leave")
	log.Info("User left warehouse", zap.String("warehouse_id", warehouseID), zap.String("user_id", userID))
	return model.ScopeLeft, nil
}
