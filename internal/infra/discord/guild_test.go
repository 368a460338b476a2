package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	member   *discordgo.Member
	roles    []*discordgo.Role
	rolesErr error
	added    []string
	removed  []string
	restHits int
}

func (f *fakeSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if f.member == nil {
		return nil, errors.New("404 unknown member")
	}
	return f.member, nil
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.added = append(f.added, roleID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.removed = append(f.removed, roleID)
	return nil
}

func (f *fakeSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.restHits++
	return f.roles, f.rolesErr
}

type fakeCache map[string]*discordgo.Role

func (c fakeCache) Role(guildID, roleID string) (*discordgo.Role, error) {
	if r, ok := c[roleID]; ok {
		return r, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func TestGuild_ListGrantRevoke(t *testing.T) {
	fs := &fakeSession{member: &discordgo.Member{Roles: []string{"r1", "mod"}}}
	g := &Guild{api: fs}
	ctx := context.Background()

	held, err := g.ListHeld(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "mod"}, held)

	require.NoError(t, g.Revoke(ctx, "g", "u", "r1"))
	require.NoError(t, g.Grant(ctx, "g", "u", "r2"))
	assert.Equal(t, []string{"r1"}, fs.removed)
	assert.Equal(t, []string{"r2"}, fs.added)

	fs.member = nil
	_, err = g.ListHeld(ctx, "g", "u")
	assert.Error(t, err)
}

func TestGuild_GroupExists_CacheFirst(t *testing.T) {
	fs := &fakeSession{}
	g := &Guild{api: fs, state: fakeCache{"r1": {ID: "r1"}}}

	ok, err := g.GroupExists(context.Background(), "g", "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, fs.restHits)
}

func TestGuild_GroupExists_FallsBackToREST(t *testing.T) {
	fs := &fakeSession{roles: []*discordgo.Role{{ID: "r2"}}}
	g := &Guild{api: fs, state: fakeCache{}}
	ctx := context.Background()

	ok, err := g.GroupExists(ctx, "g", "r2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.GroupExists(ctx, "g", "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, fs.restHits)

	fs.rolesErr = errors.New("503")
	_, err = g.GroupExists(ctx, "g", "r2")
	assert.Error(t, err)
}
