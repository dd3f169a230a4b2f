package access

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Admins is the store for back-office membership records. The table is
// managed out of band; this subsystem only reads it.
type Admins interface {
	repository.Repository[*AdminMember]

	// FindByEmail returns the membership row including its lock flag. The
	// caller decides what a locked row means.
	FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*AdminMember, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*AdminMember, error)
}

type admins struct {
	repository.Repository[*AdminMember]
	db *bun.DB
}

var _ Admins = (*admins)(nil)

func NewAdminsRepository(db *bun.DB) Admins {
	repo := repository.NewRepository[*AdminMember](db, repository.ModelHandlers[*AdminMember]{
		NewRecord: func() *AdminMember { return &AdminMember{} },
		GetID: func(m *AdminMember) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *AdminMember, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &admins{
		Repository: repo,
		db:         db,
	}
}

func (a *admins) FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*AdminMember, error) {
	return a.FindByEmailTx(ctx, a.db, email, criteria...)
}

func (a *admins) FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*AdminMember, error) {
	record := &AdminMember{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("lower(?TableAlias.email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}
