package hubbub

import "fmt"

// Kind identifies the category of a feed event.
//
// Kind is a closed enumeration: every value the feed may legitimately carry
// has a constant below, and [ParseKind] rejects anything else with
// [ErrUnknownEventKind]. The zero value is not a valid kind.
type Kind uint8

const (
	kindInvalid Kind = iota
	KindCommitComment
	KindCreate
	KindDelete
	KindDiscussion
	KindDownload
	KindFollow
	KindFork
	KindForkApply
	KindGist
	KindGollum
	KindIssueComment
	KindIssues
	KindMember
	KindPublic
	KindPullRequest
	KindPullRequestReview
	KindPullRequestReviewComment
	KindPullRequestReviewThread
	KindPush
	KindRelease
	KindSponsorship
	KindTeamAdd
	KindWatch

	kindCount
)

// kindNames holds the feed tag for each kind, indexed by Kind.
var kindNames = [kindCount]string{
	kindInvalid:                  "",
	KindCommitComment:            "CommitCommentEvent",
	KindCreate:                   "CreateEvent",
	KindDelete:                   "DeleteEvent",
	KindDiscussion:               "DiscussionEvent",
	KindDownload:                 "DownloadEvent",
	KindFollow:                   "FollowEvent",
	KindFork:                     "ForkEvent",
	KindForkApply:                "ForkApplyEvent",
	KindGist:                     "GistEvent",
	KindGollum:                   "GollumEvent",
	KindIssueComment:             "IssueCommentEvent",
	KindIssues:                   "IssuesEvent",
	KindMember:                   "MemberEvent",
	KindPublic:                   "PublicEvent",
	KindPullRequest:              "PullRequestEvent",
	KindPullRequestReview:        "PullRequestReviewEvent",
	KindPullRequestReviewComment: "PullRequestReviewCommentEvent",
	KindPullRequestReviewThread:  "PullRequestReviewThreadEvent",
	KindPush:                     "PushEvent",
	KindRelease:                  "ReleaseEvent",
	KindSponsorship:              "SponsorshipEvent",
	KindTeamAdd:                  "TeamAddEvent",
	KindWatch:                    "WatchEvent",
}

// ParseKind returns the [Kind] for a feed type tag such as "PushEvent".
//
// Matching is exact and case-sensitive, as tags are machine-generated.
// Returns an error wrapping [ErrUnknownEventKind] for any other string.
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "CommitCommentEvent":
		return KindCommitComment, nil
	case "CreateEvent":
		return KindCreate, nil
	case "DeleteEvent":
		return KindDelete, nil
	case "DiscussionEvent":
		return KindDiscussion, nil
	case "DownloadEvent":
		return KindDownload, nil
	case "FollowEvent":
		return KindFollow, nil
	case "ForkEvent":
		return KindFork, nil
	case "ForkApplyEvent":
		return KindForkApply, nil
	case "GistEvent":
		return KindGist, nil
	case "GollumEvent":
		return KindGollum, nil
	case "IssueCommentEvent":
		return KindIssueComment, nil
	case "IssuesEvent":
		return KindIssues, nil
	case "MemberEvent":
		return KindMember, nil
	case "PublicEvent":
		return KindPublic, nil
	case "PullRequestEvent":
		return KindPullRequest, nil
	case "PullRequestReviewEvent":
		return KindPullRequestReview, nil
	case "PullRequestReviewCommentEvent":
		return KindPullRequestReviewComment, nil
	case "PullRequestReviewThreadEvent":
		return KindPullRequestReviewThread, nil
	case "PushEvent":
		return KindPush, nil
	case "ReleaseEvent":
		return KindRelease, nil
	case "SponsorshipEvent":
		return KindSponsorship, nil
	case "TeamAddEvent":
		return KindTeamAdd, nil
	case "WatchEvent":
		return KindWatch, nil
	default:
		return kindInvalid, fmt.Errorf("%w: %q", ErrUnknownEventKind, tag)
	}
}

// Kinds returns every valid [Kind] in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount-1)
	for k := kindInvalid + 1; k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k > kindInvalid && k < kindCount
}

// String returns the feed tag for the kind, e.g. "PushEvent".
// This implements the fmt.Stringer interface.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler so kinds serialize as tags.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventKind, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using [ParseKind].
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
