package version

var GetRevision = getRevision
