package content

import (
	"emberbot/internal/config"
)

// ThreadFlags carries the message's thread context into scoring.
type ThreadFlags struct {
	InThread    bool
	ThreadOwner bool
}

// Score composes the quality factor for a message from its features and
// thread context. Each term is computed independently and the terms are
// multiplied together; the product is clamped to the configured bounds.
// Deterministic and side-effect free.
func Score(f Features, flags ThreadFlags, q config.Quality) float64 {
	score := attachmentTerm(f, q) * emojiTerm(f, q) * linkTerm(f, q) * threadTerm(flags, q)

	if score < q.MinFactor {
		return q.MinFactor
	}
	if score > q.MaxFactor {
		return q.MaxFactor
	}
	return score
}

// attachmentTerm rewards attachments accompanied by substantial text and
// penalizes drive-by uploads with little or none.
func attachmentTerm(f Features, q config.Quality) float64 {
	if !f.HasAttachment {
		return 1.0
	}
	switch {
	case f.WordCount >= q.GoodWordThreshold:
		return q.AttachmentBonus
	case f.WordCount >= q.ShortWordThreshold:
		return q.AttachmentShortPenalty
	default:
		return q.AttachmentTinyPenalty
	}
}

// emojiTerm scores emoji usage. The spam penalty takes precedence over the
// emoji-only penalty when both thresholds are crossed; within the spam range
// the penalty grows with the count down to a hard floor.
func emojiTerm(f Features, q config.Quality) float64 {
	if f.EmojiCount == 0 {
		return 1.0
	}
	if f.EmojiCount >= q.EmojiSpamThreshold {
		penalty := q.EmojiSpamBase - float64(f.EmojiCount-q.EmojiSpamThreshold)*q.EmojiSpamStep
		if penalty < q.EmojiSpamFloor {
			penalty = q.EmojiSpamFloor
		}
		return penalty
	}
	if f.WordCount < q.EmojiMinWords {
		return q.EmojiOnlyPenalty
	}
	return q.EmojiBonus
}

// linkTerm scores link usage. Link spam overrides the context check.
func linkTerm(f Features, q config.Quality) float64 {
	if f.LinkCount == 0 {
		return 1.0
	}
	if f.LinkCount >= q.LinkSpamThreshold {
		return q.LinkSpamPenalty
	}
	if f.WordCount < q.LinkContextWords {
		return q.LinkOnlyPenalty
	}
	return q.LinkBonus
}

// threadTerm rewards thread participation; thread creators get an extra
// multiplier on top of the membership bonus.
func threadTerm(flags ThreadFlags, q config.Quality) float64 {
	if !flags.InThread {
		return 1.0
	}
	term := q.ThreadBonus
	if flags.ThreadOwner {
		term *= q.ThreadStarterBonus
	}
	return term
}
