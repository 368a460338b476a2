package discord

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vip-ladder/tierbot/internal/app/ladder"
	"github.com/vip-ladder/tierbot/internal/app/promotion"
	"github.com/vip-ladder/tierbot/internal/domain"
)

const embedColor = 0x5865F2

// User-facing replies.
const (
	msgLookupFailed = "⚠ Could not fetch your message count. Please try again later."
	msgNotYours     = "You can't press this button."
	msgOfferGone    = "This promotion has expired or been replaced. Run %s again."
	msgStale        = "You already hold this tier or higher."
	msgRoleMissing  = "The role for this tier could not be found. Please contact a moderator."
	msgGrantFailed  = "The promotion could not be completed. Please try again."
	msgInternal     = "Something went wrong. Please try again."
	msgPromoted     = "🎉 You have been promoted to %s!"
)

// StatusEmbed renders a status report for user.
func StatusEmbed(user *discordgo.User, rep ladder.StatusReport, now time.Time) *discordgo.MessageEmbed {
	r := rep.Resolution
	var desc string
	switch {
	case !r.Qualified:
		desc = fmt.Sprintf("Not ranked yet.\nTotal messages: **%d**\n**%d** more messages until **%s**!",
			r.Count, r.Threshold-r.Count, r.Name)
	case r.AtMax:
		desc = fmt.Sprintf("Current tier **%s**!\nTotal messages: **%d**\nYou have reached the top tier!",
			r.Name, r.Count)
	default:
		desc = fmt.Sprintf("Current tier **%s**!\nTotal messages: **%d**\n**%d** more messages until **%s**!",
			r.Name, r.Count, r.Remaining, r.NextName)
	}

	e := &discordgo.MessageEmbed{
		Color:       embedColor,
		Title:       fmt.Sprintf("%s's VIP level", user.Username),
		Description: desc,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if avatar := user.AvatarURL(""); avatar != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: avatar}
	}
	return e
}

// PromoteComponents renders the confirmation button for o.
func PromoteComponents(o promotion.Offer) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Promote to " + o.TargetName,
					Style:    discordgo.SuccessButton,
					CustomID: o.Token().String(),
				},
			},
		},
	}
}

// ConfirmReply maps a confirmation outcome to the ephemeral reply text.
func ConfirmReply(conf promotion.Confirmation, err error, statusCommand string) string {
	switch {
	case err == nil:
		return fmt.Sprintf(msgPromoted, conf.Offer.TargetName)
	case errors.Is(err, domain.ErrUnauthorized):
		return msgNotYours
	case errors.Is(err, domain.ErrOfferInvalid):
		return fmt.Sprintf(msgOfferGone, statusCommand)
	case errors.Is(err, domain.ErrOfferStale):
		return msgStale
	case errors.Is(err, domain.ErrConfiguration):
		return msgRoleMissing
	case errors.Is(err, domain.ErrGroupOperation):
		return msgGrantFailed
	default:
		return msgInternal
	}
}
