package access

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"context"
)

// Profiles is the store for profile records. Lookups use the identity id,
// which doubles as the primary key.
type Profiles interface {
	repository.Repository[*Profile]

	GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)

	// CreateDefault inserts a profile for an identity that should have had
	// one created by the backend trigger. Insert only, never upsert: a race
	// with the trigger must fail loudly instead of clobbering trigger-set
	// fields.
	CreateDefault(ctx context.Context, id uuid.UUID, seed ProfileSeed) (*Profile, error)
	CreateDefaultTx(ctx context.Context, tx bun.IDB, id uuid.UUID, seed ProfileSeed) (*Profile, error)

	LinkBusiness(ctx context.Context, id uuid.UUID, businessID uuid.UUID) (*Profile, error)
	LinkBusinessTx(ctx context.Context, tx bun.IDB, id uuid.UUID, businessID uuid.UUID) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (a *profiles) GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error) {
	return a.GetByUserIDTx(ctx, a.db, id, criteria...)
}

func (a *profiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error) {
	record := &Profile{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *profiles) CreateDefault(ctx context.Context, id uuid.UUID, seed ProfileSeed) (*Profile, error) {
	return a.CreateDefaultTx(ctx, a.db, id, seed)
}

func (a *profiles) CreateDefaultTx(ctx context.Context, tx bun.IDB, id uuid.UUID, seed ProfileSeed) (*Profile, error) {
	if id == uuid.Nil {
		return nil, goerrors.New("profile requires an identity id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := seed.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile seed").
			WithCode(goerrors.CodeBadRequest)
	}

	record := &Profile{
		ID:          id,
		DisplayName: seed.DisplayName,
		Email:       seed.Email,
		Phone:       seed.Phone,
		AvatarURL:   seed.AvatarURL,
	}

	created, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "failed to insert default profile").
			WithTextCode(textCodeProfileExists).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{
				"user_id": id.String(),
			})
	}

	return created, nil
}

func (a *profiles) LinkBusiness(ctx context.Context, id uuid.UUID, businessID uuid.UUID) (*Profile, error) {
	return a.LinkBusinessTx(ctx, a.db, id, businessID)
}

func (a *profiles) LinkBusinessTx(ctx context.Context, tx bun.IDB, id uuid.UUID, businessID uuid.UUID) (*Profile, error) {
	record := &Profile{}
	record.ID = id
	record.BusinessID = &businessID

	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(id.String()),
	}

	return a.Repository.UpdateTx(ctx, tx, record, criteria...)
}
