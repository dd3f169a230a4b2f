package access

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Businesses is the store for directory businesses. Only ownership
// re-verification is in scope here; directory CRUD lives elsewhere.
type Businesses interface {
	repository.Repository[*Business]

	// VerifyOwnership confirms the business exists and is owned by the
	// given identity. NotFound covers both a missing business and an owner
	// mismatch so a stale profile linkage cannot probe ownership.
	VerifyOwnership(ctx context.Context, businessID, ownerID uuid.UUID) (*Business, error)
	VerifyOwnershipTx(ctx context.Context, tx bun.IDB, businessID, ownerID uuid.UUID) (*Business, error)
}

type businesses struct {
	repository.Repository[*Business]
	db *bun.DB
}

var _ Businesses = (*businesses)(nil)

func NewBusinessesRepository(db *bun.DB) Businesses {
	repo := repository.NewRepository[*Business](db, repository.ModelHandlers[*Business]{
		NewRecord: func() *Business { return &Business{} },
		GetID: func(b *Business) uuid.UUID {
			if b == nil {
				return uuid.Nil
			}
			return b.ID
		},
		SetID: func(b *Business, id uuid.UUID) {
			if b != nil {
				b.ID = id
			}
		},
		GetIdentifier: func() string {
			return "slug"
		},
	})

	return &businesses{
		Repository: repo,
		db:         db,
	}
}

func (a *businesses) VerifyOwnership(ctx context.Context, businessID, ownerID uuid.UUID) (*Business, error) {
	return a.VerifyOwnershipTx(ctx, a.db, businessID, ownerID)
}

func (a *businesses) VerifyOwnershipTx(ctx context.Context, tx bun.IDB, businessID, ownerID uuid.UUID) (*Business, error) {
	record := &Business{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", businessID).
		Where("?TableAlias.owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"business_id": businessID.String(),
					"owner_id":    ownerID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}
