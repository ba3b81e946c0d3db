package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nshusa/battlerune-server/internal/model"
)

// AppearanceRepository хранит внешний вид игроков по имени.
type AppearanceRepository struct {
	pool *pgxpool.Pool
}

// NewAppearanceRepository creates a repository over pool.
func NewAppearanceRepository(pool *pgxpool.Pool) *AppearanceRepository {
	return &AppearanceRepository{pool: pool}
}

// Load returns the stored appearance of name.
// ok is false when nothing is stored; the returned appearance is then
// model.DefaultAppearance(name).
func (r *AppearanceRepository) Load(ctx context.Context, name string) (a model.Appearance, ok bool, err error) {
	var (
		gender      int16
		style       []int32
		combatLevel int16
		anims       []int32
	)
	err = r.pool.QueryRow(ctx,
		`SELECT gender, style, combat_level, animations
		 FROM player_appearance WHERE name = $1`, name,
	).Scan(&gender, &style, &combatLevel, &anims)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultAppearance(name), false, nil
		}
		return model.Appearance{}, false, fmt.Errorf("loading appearance %q: %w", name, err)
	}
	if len(style) != model.StyleSlots || len(anims) != animationCount {
		return model.Appearance{}, false, fmt.Errorf("appearance %q: %d style slots, %d animations", name, len(style), len(anims))
	}

	a = model.Appearance{
		Gender:      model.Gender(gender),
		Name:        name,
		CombatLevel: int(combatLevel),
	}
	for i, v := range style {
		a.Style[i] = int(v)
	}
	a.Animations = animationsFromRow(anims)
	return a, true, nil
}

// Save upserts the appearance of a.Name.
func (r *AppearanceRepository) Save(ctx context.Context, a model.Appearance) error {
	style := make([]int32, len(a.Style))
	for i, v := range a.Style {
		style[i] = int32(v)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO player_appearance (name, gender, style, combat_level, animations, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (name) DO UPDATE SET
		   gender = EXCLUDED.gender,
		   style = EXCLUDED.style,
		   combat_level = EXCLUDED.combat_level,
		   animations = EXCLUDED.animations,
		   updated_at = now()`,
		a.Name, int16(a.Gender), style, int16(a.CombatLevel), animationsToRow(a.Animations),
	)
	if err != nil {
		return fmt.Errorf("saving appearance %q: %w", a.Name, err)
	}
	return nil
}

// Delete removes the stored appearance of name. Reports whether a row existed.
func (r *AppearanceRepository) Delete(ctx context.Context, name string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM player_appearance WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("deleting appearance %q: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// animations column order
const animationCount = 7

func animationsToRow(s model.AnimationSet) []int32 {
	return []int32{
		int32(s.Stand), int32(s.StandTurn), int32(s.Walk),
		int32(s.Turn180), int32(s.Turn90CW), int32(s.Turn90CCW), int32(s.Run),
	}
}

func animationsFromRow(row []int32) model.AnimationSet {
	return model.AnimationSet{
		Stand:     int(row[0]),
		StandTurn: int(row[1]),
		Walk:      int(row[2]),
		Turn180:   int(row[3]),
		Turn90CW:  int(row[4]),
		Turn90CCW: int(row[5]),
		Run:       int(row[6]),
	}
}
