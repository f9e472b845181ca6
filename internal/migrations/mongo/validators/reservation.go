package validators

import "go.mongodb.org/mongo-driver/bson"

var ReservationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"holder_id",
			"service_name",
			"kind",
			"slot_id",
			"status",
			"start_time",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"holder_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"service_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum":     []string{"reservation", "queue-entry"},
			},

			"slot_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"time_window": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-2][0-9]:[0-5][0-9]-[0-2][0-9]:[0-5][0-9]$`,
			},

			"items": bson.M{
				"bsonType": "array",
				"maxItems": 10,
				"items": bson.M{
					"bsonType":  "string",
					"minLength": 1,
					"maxLength": 64,
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"booked",
					"queued",
					"in-use",
					"finished",
					"cancelled",
					"expired",
				},
			},

			"start_time":         bson.M{"bsonType": "date"},
			"end_time":           bson.M{"bsonType": "date"},
			"admission_deadline": bson.M{"bsonType": "date"},
			"closed_at":          bson.M{"bsonType": "date"},

			"extension_count": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}
