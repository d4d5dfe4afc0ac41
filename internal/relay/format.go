package relay

import (
	"fmt"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/emoji"
	"github.com/memohai/facebot/internal/links"
)

// FormatNotification renders a remote message as workspace posts, body first and then one
// post per attachment. Every post is attributed to the link's remote contact.
func FormatNotification(n Notification, link links.Link, toWorkspace emoji.Converter) []channel.Post {
	var posts []channel.Post
	as := func(text string, images ...string) channel.Post {
		post := channel.Post{Text: text, Username: link.RemoteDisplayName, IconURL: link.IconURL}
		for _, img := range images {
			post.Attachments = append(post.Attachments, channel.ImageAttachment{ImageURL: img, Fallback: img})
		}
		return post
	}

	if n.Body != nil && *n.Body != "" {
		body := *n.Body
		if toWorkspace != nil {
			body = toWorkspace(body)
		}
		posts = append(posts, as(body))
	}

	for _, att := range n.Attachments {
		switch att.Kind {
		case AttachmentSticker, AttachmentPhoto, AttachmentAnimatedImage:
			posts = append(posts, as("", att.ImageURL))
		case AttachmentShare:
			posts = append(posts, as(fmt.Sprintf("<%s|%s>: %s", att.URL, att.Title, att.Description), att.ImageURL))
		case AttachmentFile:
			posts = append(posts, as(fmt.Sprintf("<%s|%s>", att.URL, att.Name)))
		case AttachmentAudioClip:
			posts = append(posts, as(fmt.Sprintf("<%s|Download Voice Message>", att.URL)))
		case AttachmentVideo:
			posts = append(posts, as(fmt.Sprintf("<%s|Download Video (%s seconds)>", att.URL, att.Duration), att.ImageURL))
		}
	}
	return posts
}
