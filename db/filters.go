package db

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// anyID matches a reference stored either as a string or, for documents
// written by the earlier Node service, as an ObjectID.
func anyID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"$in": bson.A{id, oid}}
	}
	return id
}

func idFilter(id string) bson.M {
	return bson.M{"_id": anyID(id)}
}

// versionFilter matches the document only while it is still at version.
// Documents that predate versioning count as version 0.
func versionFilter(id string, version int64) bson.M {
	f := idFilter(id)
	if version == 0 {
		f["$or"] = bson.A{
			bson.M{"version": 0},
			bson.M{"version": bson.M{"$exists": false}},
		}
		return f
	}
	f["version"] = version
	return f
}
