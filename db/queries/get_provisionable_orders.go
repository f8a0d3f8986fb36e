package queries

import (
	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
)

// GetProvisionableOrders returns up to limit confirmed orders that
// still need (re)provisioning: never attempted yet, or previously
// failed with an error worth another attempt. Orders parked for
// manual review stay out of the sweep until an operator clears the
// flag. Orders already provisioning or active are excluded here and
// re-checked again by the claim before any provider call.
func GetProvisionableOrders(tx *gorm.DB, limit int) ([]db.Order, error) {
	var orders []db.Order
	err := tx.
		Where("status = ?", constants.ORDER_STATUS_CONFIRMED).
		Where("provisioning_status NOT IN ?", []string{
			constants.PROVISIONING_STATUS_PROVISIONING,
			constants.PROVISIONING_STATUS_ACTIVE,
		}).
		Where("auto_provisioned = ? OR provisioning_status = ?",
			false, constants.PROVISIONING_STATUS_FAILED).
		Where("provisioning_error NOT LIKE ?", constants.MANUAL_REVIEW_ERROR_PREFIX+"%").
		Where("provider != ?", constants.PROVIDER_MANUAL).
		Order("created_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetPendingRenewalOrders returns every order carrying a live pending
// renewal record.
func GetPendingRenewalOrders(tx *gorm.DB) ([]db.Order, error) {
	var orders []db.Order
	err := tx.
		Where("pending_renewal_txn_id IS NOT NULL").
		Order("pending_renewal_initiated_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetSyncableOrders returns auto-provisioned orders still waiting on a
// slow backend: claimed or pending, with no credentials committed yet.
func GetSyncableOrders(tx *gorm.DB, limit int) ([]db.Order, error) {
	var orders []db.Order
	err := tx.
		Where("auto_provisioned = ?", true).
		Where("provisioning_status IN ?", []string{
			constants.PROVISIONING_STATUS_PENDING,
			constants.PROVISIONING_STATUS_PROVISIONING,
		}).
		Where("service_id != ''").
		Where("username = '' OR password = '' OR ip_address = ''").
		Order("updated_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
