package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-santa-raffle/internal/domain"
)

const adminChat int64 = 1

func TestCreateGameScene(t *testing.T) {
	b := newTestBot(t, Options{})
	ctx := context.Background()

	b.say(t, adminChat, "/create", "MyGame", "500")

	game, err := b.storage.GetGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MyGame", game.Name)
	assert.Equal(t, 500.0, game.GiftCost)
	assert.Len(t, game.ID, gameIDLength)

	assert.Equal(t, []string{
		b.messages.Plain("create_prompt_name"),
		b.messages.Plain("create_prompt_cost"),
		fmt.Sprintf(`Игра "MyGame" успешно создана с ID - %s и стоимостью подарка - 500 руб`, game.ID),
	}, b.api.sent(adminChat))

	sess, err := b.storage.GetSession(ctx, adminChat)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCreateGameSceneOverwritesPreviousGameWithFreshID(t *testing.T) {
	b := newTestBot(t, Options{})
	ctx := context.Background()

	b.say(t, adminChat, "/create", "First", "100")
	first, err := b.storage.GetGame(ctx)
	require.NoError(t, err)

	b.say(t, adminChat, "/create", "Second", "200")
	second, err := b.storage.GetGame(ctx)
	require.NoError(t, err)

	assert.Equal(t, "Second", second.Name)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateGameSceneRejectsInvalidCost(t *testing.T) {
	for _, input := range []string{"abc", "-5", "NaN", "Inf", ""} {
		t.Run(input, func(t *testing.T) {
			b := newTestBot(t, Options{})
			ctx := context.Background()

			b.say(t, adminChat, "/create", "MyGame")
			if input != "" {
				b.say(t, adminChat, input)
			}

			_, err := b.storage.GetGame(ctx)
			assert.ErrorIs(t, err, domain.ErrNoGame)

			sess, err := b.storage.GetSession(ctx, adminChat)
			require.NoError(t, err)
			require.NotNil(t, sess, "the dialogue must keep waiting for a cost")
			assert.Equal(t, 2, sess.Step)
			assert.Equal(t, "MyGame", sess.GameName)

			b.say(t, adminChat, "1 500,5")
			game, err := b.storage.GetGame(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1500.5, game.GiftCost)
		})
	}
}

func TestCreateGameSceneNonTextReprompts(t *testing.T) {
	b := newTestBot(t, Options{})

	b.say(t, adminChat, "/create")
	b.press(t, adminChat, actionJoin)

	assert.Equal(t, b.messages.Plain("create_reprompt_name"), b.api.last(t, adminChat).Text)
	sess, err := b.storage.GetSession(context.Background(), adminChat)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Step)
}

func TestJoinGameScene(t *testing.T) {
	b := newTestBot(t, Options{})
	ctx := context.Background()
	b.say(t, adminChat, "/create", "Office", "1000")

	b.join(t, 111, "Alice", "A book")

	ps, err := b.storage.GetParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{111}, ps.IDs())
	alice, _ := ps.Get(111)
	assert.Equal(t, domain.Participant{Name: "Alice", GiftWish: "A book"}, *alice)

	sent := b.api.sent(111)
	require.Len(t, sent, 3)
	assert.Contains(t, sent[1], "не должна превышать 1000 руб.")
	assert.Contains(t, sent[2], "Отлично, Alice спасибо")
}

func TestJoinGameSceneRejoinOverwritesEntry(t *testing.T) {
	b := newTestBot(t, Options{})
	b.say(t, adminChat, "/create", "Office", "1000")

	b.join(t, 111, "Alice", "A book")
	b.join(t, 222, "Bob", "Tea")
	b.join(t, 111, "Alice", "Two books")

	ps, err := b.storage.GetParticipants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{111, 222}, ps.IDs())
	alice, _ := ps.Get(111)
	assert.Equal(t, "Two books", alice.GiftWish)
}

func TestJoinButtonWithoutGame(t *testing.T) {
	b := newTestBot(t, Options{})

	b.press(t, 111, actionJoin)

	assert.Equal(t, []string{b.messages.Plain("no_game")}, b.api.sent(111))
	sess, err := b.storage.GetSession(context.Background(), 111)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestJoinGameSceneGameRemovedMidway(t *testing.T) {
	b := newTestBot(t, Options{})
	ctx := context.Background()
	b.say(t, adminChat, "/create", "Office", "1000")

	b.press(t, 111, actionJoin)
	require.NoError(t, b.storage.Reset(ctx))
	b.say(t, 111, "Alice")

	assert.Equal(t, b.messages.Plain("no_game"), b.api.last(t, 111).Text)
	sess, err := b.storage.GetSession(ctx, 111)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCancelAbandonsSceneAtEveryStep(t *testing.T) {
	steps := [][]string{
		{"/create"},
		{"/create", "MyGame"},
	}
	for _, keyword := range []string{"/cancel", "/exit", "quit", "/leave"} {
		for _, prefix := range steps {
			t.Run(fmt.Sprintf("%s after %d", keyword, len(prefix)), func(t *testing.T) {
				b := newTestBot(t, Options{})
				ctx := context.Background()

				b.say(t, adminChat, prefix...)
				b.say(t, adminChat, keyword)
				assert.Equal(t, b.messages.Plain("cancelled"), b.api.last(t, adminChat).Text)

				b.say(t, adminChat, "500")
				assert.Equal(t, b.messages.Plain("invalid_url"), b.api.last(t, adminChat).Text)

				_, err := b.storage.GetGame(ctx)
				assert.ErrorIs(t, err, domain.ErrNoGame)
			})
		}
	}
}

func TestCancelJoinDiscardsHalfEntry(t *testing.T) {
	b := newTestBot(t, Options{})
	ctx := context.Background()
	b.say(t, adminChat, "/create", "Office", "1000")

	b.press(t, 111, actionJoin)
	b.say(t, 111, "Alice", "/cancel")

	ps, err := b.storage.GetParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ps.Len())
}

func TestParseGiftCost(t *testing.T) {
	valid := map[string]float64{
		"500":    500,
		" 0 ":    0,
		"99,90":  99.9,
		"1 000":  1000,
		"1500.5": 1500.5,
	}
	for input, want := range valid {
		got, err := parseGiftCost(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, input := range []string{"", "five", "-1", "NaN", "+Inf", "1e400"} {
		_, err := parseGiftCost(input)
		assert.ErrorIs(t, err, domain.ErrInvalidGiftCost, input)
	}
}
