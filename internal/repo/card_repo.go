// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to the card catalog and a
// seed of the classic major arcana applied when the table is empty.
package repo

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// ListCards returns the full card catalog ordered by ID.
func ListCards(ctx context.Context, db *gorm.DB) ([]domain.Card, error) {
	var out []domain.Card
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

// CountCards returns the catalog size.
func CountCards(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Card{}).Count(&n).Error
	return n, err
}

// SeedCards inserts the default catalog when the table is empty. Safe to call
// on every startup.
func SeedCards(ctx context.Context, db *gorm.DB) error {
	n, err := CountCards(ctx, db)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return db.WithContext(ctx).Create(defaultCatalog()).Error
}

// defaultCatalog builds the 22 major arcana cards.
func defaultCatalog() []domain.Card {
	type seed struct {
		name, display, meaning, keywords string
	}
	seeds := []seed{
		{"the_fool", "The Fool", "New beginnings, spontaneity, a leap of faith.", "beginnings,innocence,adventure"},
		{"the_magician", "The Magician", "Willpower, resourcefulness, making things manifest.", "skill,focus,manifestation"},
		{"the_high_priestess", "The High Priestess", "Intuition, hidden knowledge, the inner voice.", "intuition,mystery,subconscious"},
		{"the_empress", "The Empress", "Abundance, nurture, creative growth.", "abundance,care,fertility"},
		{"the_emperor", "The Emperor", "Structure, authority, stable foundations.", "stability,authority,order"},
		{"the_hierophant", "The Hierophant", "Tradition, guidance, shared values.", "tradition,learning,belief"},
		{"the_lovers", "The Lovers", "Union, meaningful choice, alignment of values.", "love,choice,harmony"},
		{"the_chariot", "The Chariot", "Determination, momentum, disciplined victory.", "drive,willpower,success"},
		{"strength", "Strength", "Quiet courage, patience, compassion over force.", "courage,patience,compassion"},
		{"the_hermit", "The Hermit", "Reflection, solitude, searching inward.", "introspection,solitude,wisdom"},
		{"wheel_of_fortune", "Wheel of Fortune", "Cycles, turning points, fortune in motion.", "change,cycles,destiny"},
		{"justice", "Justice", "Fairness, accountability, cause and effect.", "fairness,truth,balance"},
		{"the_hanged_man", "The Hanged Man", "Pause, surrender, a shift in perspective.", "surrender,perspective,waiting"},
		{"death", "Death", "Endings that clear the way for renewal.", "endings,transition,renewal"},
		{"temperance", "Temperance", "Moderation, blending, steady healing.", "balance,moderation,patience"},
		{"the_devil", "The Devil", "Attachment, restriction, facing one's shadow.", "attachment,restriction,shadow"},
		{"the_tower", "The Tower", "Sudden upheaval, revelation, necessary collapse.", "upheaval,revelation,change"},
		{"the_star", "The Star", "Hope, renewal, faith in the future.", "hope,inspiration,healing"},
		{"the_moon", "The Moon", "Uncertainty, dreams, navigating the unknown.", "illusion,intuition,uncertainty"},
		{"the_sun", "The Sun", "Vitality, clarity, uncomplicated joy.", "joy,success,vitality"},
		{"judgement", "Judgement", "Awakening, reckoning, answering a call.", "awakening,renewal,calling"},
		{"the_world", "The World", "Completion, integration, a cycle fulfilled.", "completion,wholeness,achievement"},
	}

	cards := make([]domain.Card, 0, len(seeds))
	for i, s := range seeds {
		cards = append(cards, domain.Card{
			ID:          fmt.Sprintf("major_%02d", i),
			Name:        s.name,
			DisplayName: s.display,
			Meaning:     s.meaning,
			Keywords:    s.keywords,
			ImageRef:    "cards/" + strings.ReplaceAll(s.name, "_", "-") + ".png",
		})
	}
	return cards
}
