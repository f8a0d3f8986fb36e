package queries

import (
	"errors"

	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
)

var ErrAlreadyClaimed = errors.New("order is already provisioning or active")

// ClaimProvisioning atomically moves an order into the provisioning
// state. The conditional UPDATE is the system's only concurrency
// guard: there is no distributed lock, so every worker that wants to
// provision must win this claim first. Zero rows affected means
// another worker holds the order (or it is already active).
func ClaimProvisioning(tx *gorm.DB, orderID string) error {
	result := tx.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("provisioning_status NOT IN ?", []string{
			constants.PROVISIONING_STATUS_PROVISIONING,
			constants.PROVISIONING_STATUS_ACTIVE,
		}).
		Update("provisioning_status", constants.PROVISIONING_STATUS_PROVISIONING)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// ResetProvisioning moves a failed order back to pending so the batch
// runner will pick it up again.
func ResetProvisioning(tx *gorm.DB, orderID string) error {
	return tx.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("provisioning_status = ?", constants.PROVISIONING_STATUS_FAILED).
		Update("provisioning_status", constants.PROVISIONING_STATUS_PENDING).Error
}
