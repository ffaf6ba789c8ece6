// Package versioning holds the pure rules of the schema-version lifecycle:
// table naming, schema and configuration hashing, type resolution and mapping
// validation.
package versioning

import (
	"fmt"
	"regexp"

	"go-datasync/pkg/utils"
)

var versionSuffix = regexp.MustCompile(`_v\d+$`)

// TableName derives the physical table of a schema version:
// {prefix}{connector}_{slug(source)}_{slug(dataset)}_v{version}.
func TableName(prefix, connectorKey, sourceName, dataset string, version int) string {
	return fmt.Sprintf("%s%s_%s_%s_v%d",
		prefix, utils.Slugify(connectorKey), utils.Slugify(sourceName), utils.Slugify(dataset), version)
}

// NextTableName derives the table of a new version from the table of the
// previous one by replacing its _v<N> suffix.
func NextTableName(previous string, version int) string {
	return fmt.Sprintf("%s_v%d", versionSuffix.ReplaceAllString(previous, ""), version)
}
