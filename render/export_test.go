package render

var PutMat4 = putMat4
