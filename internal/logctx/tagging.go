package logctx

import (
	"context"
	"pivotrepair/internal/global"
)

// Appends tags to the context tag list.
// Copies the parent list so sibling contexts never share a backing array.
func AppendCtxTag(ctx context.Context, newTags ...string) (newCtx context.Context) {
	old := GetTagList(ctx)

	tags := make([]string, 0, len(old)+len(newTags))
	tags = append(tags, old...)
	tags = append(tags, newTags...)

	newCtx = context.WithValue(ctx, global.LogTagsKey, tags)
	return
}

// Extracts tag list from context or returns empty list
func GetTagList(ctx context.Context) (tags []string) {
	tags, ok := ctx.Value(global.LogTagsKey).([]string)
	if !ok {
		tags = []string{}
	}
	return
}
