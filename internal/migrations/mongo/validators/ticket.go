package validators

import "go.mongodb.org/mongo-driver/bson"

var TicketValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"activity_id",
			"holder_id",
			"number",
			"status",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"activity_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"holder_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"number": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"waiting",
					"called",
					"served",
					"skipped",
					"timed-out",
					"cancelled",
				},
			},

			"called_at":        bson.M{"bsonType": "date"},
			"resolved_at":      bson.M{"bsonType": "date"},
			"no_show_deadline": bson.M{"bsonType": "date"},
			"created_at":       bson.M{"bsonType": "date"},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}
